package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/polisai/policy-exporter/pkg/domain"
	"github.com/polisai/policy-exporter/pkg/neuvector"
)

type fakeExport struct {
	status int
	body   string
	err    error
}

// fakeController stands in for the controller API. Exports default to a 200
// with a small artifact naming the group.
type fakeController struct {
	mu         sync.Mutex
	listStatus int
	listBody   string
	listErr    error
	exports    map[string]fakeExport
	getCalls   int
	requests   []domain.ExportRequest
}

func newFakeController(groups ...domain.Group) *fakeController {
	if groups == nil {
		groups = []domain.Group{}
	}
	body, _ := json.Marshal(map[string]any{"groups": groups})
	return &fakeController{
		listStatus: http.StatusOK,
		listBody:   string(body),
		exports:    map[string]fakeExport{},
	}
}

func (f *fakeController) Get(_ context.Context, path string) (*neuvector.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if path != pathGroups {
		return &neuvector.Response{StatusCode: http.StatusNotFound}, nil
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &neuvector.Response{StatusCode: f.listStatus, Body: []byte(f.listBody)}, nil
}

func (f *fakeController) Post(_ context.Context, path string, payload any) (*neuvector.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path != pathExportGroup {
		return &neuvector.Response{StatusCode: http.StatusNotFound}, nil
	}
	req, ok := payload.(domain.ExportRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}
	f.requests = append(f.requests, req)

	export, ok := f.exports[req.Groups[0]]
	if !ok {
		export = fakeExport{status: http.StatusOK, body: artifactFor(req.Groups[0], req.PolicyMode)}
	}
	if export.err != nil {
		return nil, export.err
	}
	return &neuvector.Response{StatusCode: export.status, Body: []byte(export.body)}, nil
}

func (f *fakeController) exported() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, r := range f.requests {
		names = append(names, r.Groups...)
	}
	return names
}

func artifactFor(group string, mode domain.PolicyMode) string {
	return fmt.Sprintf("apiVersion: v1\nkind: List\nitems:\n- kind: NvSecurityRule\n  metadata:\n    name: %s\n  spec:\n    policymode: %s\n", group, mode)
}
