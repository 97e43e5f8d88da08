// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/metabo-qc/metaboqc"

func main() {
	metaboqc.Main()
}
