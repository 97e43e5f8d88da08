// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"git.arvados.org/arvados.git/lib/cmd"
	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/websocket"
)

const runtimeImage = "metaboqc-runtime"

type eventMessage struct {
	Status     int
	ObjectUUID string `json:"object_uuid"`
	EventType  string `json:"event_type"`
	Properties struct {
		Text string
	}
}

// eventStream delivers websocket events about one object, reconnecting
// until closed.
type eventStream struct {
	client *arvados.Client
	uuid   string
	C      chan eventMessage
	done   chan struct{}
	once   sync.Once
}

func subscribeEvents(client *arvados.Client, uuid string) *eventStream {
	es := &eventStream{
		client: client,
		uuid:   uuid,
		C:      make(chan eventMessage),
		done:   make(chan struct{}),
	}
	go es.run()
	return es
}

func (es *eventStream) Close() {
	es.once.Do(func() { close(es.done) })
}

func (es *eventStream) run() {
	for {
		err := es.stream()
		select {
		case <-es.done:
			return
		case <-time.After(5 * time.Second):
			log.Warnf("event stream: %s, reconnecting", err)
		}
	}
}

func (es *eventStream) stream() error {
	var cluster arvados.Cluster
	err := es.client.RequestAndDecode(&cluster, "GET", arvados.EndpointConfigGet.Path, nil, nil)
	if err != nil {
		return fmt.Errorf("getting cluster config: %w", err)
	}
	wsURL := cluster.Services.Websocket.ExternalURL
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	wsURL.Path = "/websocket"
	wsURL.RawQuery = url.Values{"api_token": []string{es.client.AuthToken}}.Encode()
	conn, err := websocket.Dial(wsURL.String(), "", cluster.Services.Controller.ExternalURL.String())
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()
	go func() {
		<-es.done
		conn.Close()
	}()
	err = json.NewEncoder(conn).Encode(map[string]interface{}{
		"method": "subscribe",
		"filters": [][]interface{}{
			{"object_uuid", "=", es.uuid},
			{"event_type", "in", []string{"stderr", "crunch-run", "update"}},
		},
	})
	if err != nil {
		return err
	}
	dec := json.NewDecoder(conn)
	for {
		var msg eventMessage
		if err := dec.Decode(&msg); err != nil {
			return fmt.Errorf("decoding message: %w", err)
		}
		select {
		case es.C <- msg:
		case <-es.done:
			return nil
		}
	}
}

// containerRunner re-runs this program, with the given arguments, in
// an Arvados container and waits for it to finish.
type containerRunner struct {
	Client      *arvados.Client
	Name        string
	OutputName  string
	ProjectUUID string
	VCPUs       int
	RAM         int64
	Args        []string
	Mounts      map[string]map[string]interface{}
	Priority    int
	KeepCache   int // cache buffers per VCPU (0 for default)
	Preemptible bool
}

// Run submits the container request and returns the UUID of the
// output collection. Cancelling ctx cancels the container request.
func (runner *containerRunner) Run(ctx context.Context) (string, error) {
	if runner.ProjectUUID == "" {
		return "", errors.New("cannot run arvados container: project UUID not provided")
	}
	cmdUUID, err := runner.makeCommandCollection()
	if err != nil {
		return "", err
	}
	mounts := map[string]map[string]interface{}{
		"/mnt/output": {"kind": "collection", "writable": true},
		"/mnt/cmd":    {"kind": "collection", "uuid": cmdUUID},
	}
	for path, mnt := range runner.Mounts {
		mounts[path] = mnt
	}
	priority := runner.Priority
	if priority < 1 {
		priority = 500
	}
	keepCache := runner.KeepCache
	if keepCache < 1 {
		keepCache = 2
	}
	rc := arvados.RuntimeConstraints{
		VCPUs:        runner.VCPUs,
		RAM:          runner.RAM,
		KeepCacheRAM: (1 << 26) * int64(keepCache) * int64(runner.VCPUs),
	}
	var outname interface{}
	if runner.OutputName != "" {
		outname = runner.OutputName
	}
	var cr arvados.ContainerRequest
	err = runner.Client.RequestAndDecodeContext(ctx, &cr, "POST", "arvados/v1/container_requests", nil, map[string]interface{}{
		"container_request": map[string]interface{}{
			"owner_uuid":          runner.ProjectUUID,
			"name":                runner.Name,
			"container_image":     runtimeImage,
			"command":             append([]string{"/mnt/cmd/metaboqc"}, runner.Args...),
			"mounts":              mounts,
			"use_existing":        true,
			"output_path":         "/mnt/output",
			"output_name":         outname,
			"runtime_constraints": rc,
			"priority":            priority,
			"state":               arvados.ContainerRequestStateCommitted,
			"scheduling_parameters": arvados.SchedulingParameters{
				Preemptible: runner.Preemptible,
				Partitions:  []string{},
			},
			"environment": map[string]string{
				"GOMAXPROCS": fmt.Sprintf("%d", rc.VCPUs),
			},
			"container_count_max": 1,
		},
	})
	if err != nil {
		return "", err
	}
	log.Printf("container request UUID: %s", cr.UUID)
	if err := runner.wait(ctx, &cr); err != nil {
		return "", err
	}

	var c arvados.Container
	err = runner.Client.RequestAndDecode(&c, "GET", "arvados/v1/containers/"+cr.ContainerUUID, nil, nil)
	if err != nil {
		return "", err
	} else if c.State != arvados.ContainerStateComplete {
		return "", fmt.Errorf("container did not complete: %s", c.State)
	} else if c.ExitCode != 0 {
		return "", fmt.Errorf("container exited %d", c.ExitCode)
	}
	return cr.OutputUUID, nil
}

// wait follows the container request until it is final, copying the
// container's stderr to our log.
func (runner *containerRunner) wait(ctx context.Context, cr *arvados.ContainerRequest) error {
	var events *eventStream
	defer func() {
		if events != nil {
			events.Close()
		}
	}()
	tail := logTail{runner: runner}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	lastState := cr.State
	refresh := func() {
		err := runner.Client.RequestAndDecodeContext(ctx, cr, "GET", "arvados/v1/container_requests/"+cr.UUID, nil, nil)
		if err != nil {
			log.Printf("error getting container request: %s", err)
			return
		}
		if cr.State != lastState {
			log.Printf("container request state: %s", cr.State)
			lastState = cr.State
		}
		if cr.ContainerUUID != "" && (events == nil || events.uuid != cr.ContainerUUID) {
			if events != nil {
				events.Close()
			}
			log.Printf("container UUID: %s", cr.ContainerUUID)
			events = subscribeEvents(runner.Client, cr.ContainerUUID)
			tail = logTail{runner: runner}
		}
	}
	refresh()
	for cr.State != arvados.ContainerRequestStateFinal {
		var eventC chan eventMessage
		if events != nil {
			eventC = events.C
		}
		select {
		case <-ctx.Done():
			err := runner.Client.RequestAndDecode(cr, "PATCH", "arvados/v1/container_requests/"+cr.UUID, nil, map[string]interface{}{
				"container_request": map[string]interface{}{"priority": 0},
			})
			if err != nil {
				log.Errorf("error while trying to cancel container request %s: %s", cr.UUID, err)
			}
			return ctx.Err()
		case msg := <-eventC:
			if msg.EventType == "update" {
				refresh()
			} else {
				tail.poll(cr)
			}
		case <-ticker.C:
			refresh()
			tail.poll(cr)
		}
	}
	tail.poll(cr)
	return nil
}

// logTail fetches new lines of the container's stderr log.
type logTail struct {
	runner *containerRunner
	offset int64
}

func (lt *logTail) poll(cr *arvados.ContainerRequest) {
	if cr.ContainerUUID == "" {
		return
	}
	req, err := http.NewRequest("GET", "https://"+lt.runner.Client.APIHost+"/arvados/v1/container_requests/"+cr.UUID+"/log/"+cr.ContainerUUID+"/stderr.txt", nil)
	if err != nil {
		log.Errorf("error preparing log request: %s", err)
		return
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", lt.offset))
	resp, err := lt.runner.Client.Do(req)
	if err != nil {
		log.Errorf("error getting log data: %s", err)
		return
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return
	case resp.StatusCode >= 300:
		log.Errorf("error getting log data: %s", resp.Status)
		return
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("error reading log data: %s", err)
		return
	}
	for {
		eol := bytes.IndexByte(data, '\n')
		if eol < 0 {
			break
		}
		if eol > 0 {
			log.Print(string(data[:eol]))
		}
		lt.offset += int64(eol + 1)
		data = data[eol+1:]
	}
}

var collectionInPathRe = regexp.MustCompile(`^(.*/)?([0-9a-f]{32}\+[0-9]+|[0-9a-z]{5}-[0-9a-z]{5}-[0-9a-z]{15})(/.*)?$`)

// TranslatePaths rewrites each collection path ("<uuid or pdh>/...")
// to the place it will be mounted inside the container.
func (runner *containerRunner) TranslatePaths(paths ...*string) error {
	if runner.Mounts == nil {
		runner.Mounts = make(map[string]map[string]interface{})
	}
	for _, path := range paths {
		if *path == "" || *path == "-" {
			continue
		}
		m := collectionInPathRe.FindStringSubmatch(*path)
		if m == nil {
			return fmt.Errorf("cannot find uuid in path: %q", *path)
		}
		collID := m[2]
		if _, ok := runner.Mounts["/mnt/"+collID]; !ok {
			mnt := map[string]interface{}{"kind": "collection"}
			if len(collID) == 27 {
				mnt["uuid"] = collID
			} else {
				mnt["portable_data_hash"] = collID
			}
			runner.Mounts["/mnt/"+collID] = mnt
		}
		*path = "/mnt/" + collID + m[3]
	}
	return nil
}

var mtxMakeCommandCollection sync.Mutex

// makeCommandCollection stores the running binary in a collection,
// reusing an existing one with the same name and blake2b hash.
func (runner *containerRunner) makeCommandCollection() (string, error) {
	mtxMakeCommandCollection.Lock()
	defer mtxMakeCommandCollection.Unlock()
	exe, err := os.ReadFile("/proc/self/exe")
	if err != nil {
		return "", err
	}
	b2 := fmt.Sprintf("%x", blake2b.Sum256(exe))
	cname := "metaboqc " + cmd.Version.String()
	var existing arvados.CollectionList
	err = runner.Client.RequestAndDecode(&existing, "GET", "arvados/v1/collections", nil, arvados.ListOptions{
		Limit: 1,
		Count: "none",
		Filters: []arvados.Filter{
			{Attr: "name", Operator: "=", Operand: cname},
			{Attr: "owner_uuid", Operator: "=", Operand: runner.ProjectUUID},
			{Attr: "properties.blake2b", Operator: "=", Operand: b2},
		},
	})
	if err != nil {
		return "", err
	}
	if len(existing.Items) > 0 {
		log.Printf("using metaboqc binary in existing collection %s", existing.Items[0].UUID)
		return existing.Items[0].UUID, nil
	}
	ac, err := arvadosclient.New(runner.Client)
	if err != nil {
		return "", err
	}
	var coll arvados.Collection
	fs, err := coll.FileSystem(runner.Client, keepclient.New(ac))
	if err != nil {
		return "", err
	}
	f, err := fs.OpenFile("metaboqc", os.O_CREATE|os.O_WRONLY, 0777)
	if err != nil {
		return "", err
	}
	if _, err = f.Write(exe); err != nil {
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	mtxt, err := fs.MarshalManifest(".")
	if err != nil {
		return "", err
	}
	err = runner.Client.RequestAndDecode(&coll, "POST", "arvados/v1/collections", nil, map[string]interface{}{
		"collection": map[string]interface{}{
			"owner_uuid":    runner.ProjectUUID,
			"manifest_text": mtxt,
			"name":          cname,
			"properties":    map[string]interface{}{"blake2b": b2},
		},
	})
	if err != nil {
		return "", err
	}
	log.Printf("stored metaboqc binary in new collection %s", coll.UUID)
	return coll.UUID, nil
}
