// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"bufio"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

var (
	keepClient *keepclient.KeepClient
	siteFS     arvados.CustomFileSystem
	siteFSMtx  sync.Mutex
)

// keepPath returns the site filesystem path of fnm if it names a file
// in an Arvados collection and an Arvados API host is configured.
func keepPath(fnm string) (string, bool) {
	if os.Getenv("ARVADOS_API_HOST") == "" {
		return "", false
	}
	m := collectionInPathRe.FindStringSubmatch(fnm)
	if m == nil {
		return "", false
	}
	return "by_id/" + m[2] + m[3], true
}

func setupSiteFS() error {
	if siteFS != nil {
		return nil
	}
	log.Info("setting up Arvados client")
	client := arvados.NewClientFromEnv()
	ac, err := arvadosclient.New(client)
	if err != nil {
		return err
	}
	ac.Client = arvados.DefaultSecureClient
	keepClient = keepclient.New(ac)
	// keepclient's default timeouts are too short for large blocks
	keepClient.HTTPClient = arvados.DefaultSecureClient
	keepClient.BlockCache = &keepclient.BlockCache{MaxBlocks: 4}
	siteFS = client.SiteFileSystem(keepClient)
	return nil
}

// open returns a reader for fnm, reading through the Arvados API
// instead of arv-mount where applicable.
func open(fnm string) (io.ReadCloser, error) {
	path, ok := keepPath(fnm)
	if !ok {
		return os.Open(fnm)
	}
	siteFSMtx.Lock()
	defer siteFSMtx.Unlock()
	if err := setupSiteFS(); err != nil {
		return nil, err
	}
	log.Infof("reading %q using Arvados client", path)
	f, err := siteFS.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// statFile is os.Stat, or its Arvados equivalent for collection paths.
func statFile(fnm string) (fs.FileInfo, error) {
	path, ok := keepPath(fnm)
	if !ok {
		return os.Stat(fnm)
	}
	siteFSMtx.Lock()
	defer siteFSMtx.Unlock()
	if err := setupSiteFS(); err != nil {
		return nil, err
	}
	return siteFS.Stat(path)
}

// zopen is open, transparently decompressing the input if fnm ends
// with ".gz".
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := open(fnm)
	if err != nil || !strings.HasSuffix(fnm, ".gz") {
		return f, err
	}
	rdr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4*1024*1024))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipr{rdr, f}, nil
}

// gzipr closes both the decompressor and the underlying file.
type gzipr struct {
	io.ReadCloser
	io.Closer
}

func (gr gzipr) Close() error {
	e1 := gr.ReadCloser.Close()
	e2 := gr.Closer.Close()
	if e1 != nil {
		return e1
	}
	return e2
}
