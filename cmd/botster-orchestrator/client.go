package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/trybotster/botster-orchestrator/internal/adminapi"
	"github.com/trybotster/botster-orchestrator/internal/registry"
)

// adminClient is a thin HTTP client against a running daemon's admin API.
type adminClient struct {
	baseURL string
}

func newAdminClient() *adminClient {
	return &adminClient{baseURL: "http://" + adminAddr}
}

func (c *adminClient) get(path string, out any) error {
	resp, err := http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("contact daemon (is 'botster-orchestrator serve' running?): %w", err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func (c *adminClient) post(path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := http.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("contact daemon (is 'botster-orchestrator serve' running?): %w", err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func decodeOrError(resp *http.Response, out any) error {
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %s: %s", resp.Status, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *adminClient) openSession(workingDir, title string) (adminapi.SessionView, error) {
	var view adminapi.SessionView
	err := c.post("/sessions/open", adminapi.OpenRequest{WorkingDir: workingDir, Title: title}, &view)
	return view, err
}

func (c *adminClient) listSessions() ([]adminapi.SessionView, error) {
	var views []adminapi.SessionView
	err := c.get("/sessions/list", &views)
	return views, err
}

func (c *adminClient) sendInput(sessionID, data string) (adminapi.SendResponse, error) {
	var resp adminapi.SendResponse
	err := c.post("/sessions/send", adminapi.SendRequest{SessionID: sessionID, Data: data}, &resp)
	return resp, err
}

func (c *adminClient) closeSession(sessionID string) error {
	return c.post("/sessions/close", adminapi.CloseRequest{SessionID: sessionID}, nil)
}

func (c *adminClient) listProviders() ([]adminapi.ProviderView, error) {
	var views []adminapi.ProviderView
	err := c.get("/providers/list", &views)
	return views, err
}

func (c *adminClient) rankCapabilities(sessionID string) ([]registry.Capability, error) {
	var caps []registry.Capability
	err := c.get("/providers/rank?session_id="+sessionID, &caps)
	return caps, err
}

func (c *adminClient) status() (adminapi.StatusResponse, error) {
	var status adminapi.StatusResponse
	err := c.get("/status", &status)
	return status, err
}
