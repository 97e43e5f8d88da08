// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"os"

	"gopkg.in/check.v1"
)

type arvadosSuite struct{}

var _ = check.Suite(&arvadosSuite{})

func (s *arvadosSuite) TestTranslatePaths(c *check.C) {
	var runner containerRunner
	in := "/mnt/zzzzz-4zz18-aaaaaaaaaaaaaaa/release/ADNI"
	pdh := "keep/by_id/d41d8cd98f00b204e9800998ecf8427e+0/lod"
	empty := ""
	c.Assert(runner.TranslatePaths(&in, &pdh, &empty), check.IsNil)
	c.Check(in, check.Equals, "/mnt/zzzzz-4zz18-aaaaaaaaaaaaaaa/release/ADNI")
	c.Check(pdh, check.Equals, "/mnt/d41d8cd98f00b204e9800998ecf8427e+0/lod")
	c.Check(empty, check.Equals, "")
	c.Check(runner.Mounts, check.DeepEquals, map[string]map[string]interface{}{
		"/mnt/zzzzz-4zz18-aaaaaaaaaaaaaaa":        {"kind": "collection", "uuid": "zzzzz-4zz18-aaaaaaaaaaaaaaa"},
		"/mnt/d41d8cd98f00b204e9800998ecf8427e+0": {"kind": "collection", "portable_data_hash": "d41d8cd98f00b204e9800998ecf8427e+0"},
	})

	local := "/tmp/input"
	c.Check(runner.TranslatePaths(&local), check.ErrorMatches, `cannot find uuid in path: "/tmp/input"`)
}

func (s *arvadosSuite) TestKeepPath(c *check.C) {
	defer os.Setenv("ARVADOS_API_HOST", os.Getenv("ARVADOS_API_HOST"))
	os.Setenv("ARVADOS_API_HOST", "")
	_, ok := keepPath("/mnt/zzzzz-4zz18-aaaaaaaaaaaaaaa/x.csv")
	c.Check(ok, check.Equals, false)

	os.Setenv("ARVADOS_API_HOST", "zzzzz.example.com")
	path, ok := keepPath("/mnt/zzzzz-4zz18-aaaaaaaaaaaaaaa/x.csv")
	c.Check(ok, check.Equals, true)
	c.Check(path, check.Equals, "by_id/zzzzz-4zz18-aaaaaaaaaaaaaaa/x.csv")
	_, ok = keepPath("/tmp/x.csv")
	c.Check(ok, check.Equals, false)
}
