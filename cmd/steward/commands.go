package main

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/steward/pkg/client"
)

// defaultAPIUrl is the server root of a locally running daemon. The client
// appends /api to it for command paths.
const defaultAPIUrl = "http://127.0.0.1:8080"

type command struct{}

// apiClient dials the daemon for the given connection flags and verifies it
// answers /healthz before any command is sent.
func (c *command) apiClient(apiUrl string, timeout time.Duration) (*client.Client, error) {
	if apiUrl == "" {
		apiUrl = defaultAPIUrl // Default local daemon
	}
	cl := client.New(client.Config{BaseURL: apiUrl, Timeout: timeout})
	if !cl.IsReachable(context.Background()) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'steward serve'", apiUrl)
	}
	return cl, nil
}

// printStatus fetches and prints the stored record after a command mutated it.
func (c *command) printStatus(cl *client.Client, name string) error {
	st, err := cl.Status(context.Background(), name)
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

// Start brings one registered service to running via the daemon API.
func (c *command) Start(f ServiceFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if f.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if err := cl.Start(context.Background(), f.Name); err != nil {
		return err
	}
	return c.printStatus(cl, f.Name)
}

// Stop stops one service. Stopping an already stopped service succeeds.
func (c *command) Stop(f ServiceFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if f.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if err := cl.Stop(context.Background(), f.Name); err != nil {
		return err
	}
	return c.printStatus(cl, f.Name)
}

// Restart stops and starts one service.
func (c *command) Restart(f ServiceFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if f.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if err := cl.Restart(context.Background(), f.Name); err != nil {
		return err
	}
	return c.printStatus(cl, f.Name)
}

// Status prints one stored record or a listing filtered by kind.
func (c *command) Status(f StatusFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if f.Name != "" {
		return c.printStatus(cl, f.Name)
	}
	sts, err := cl.StatusAll(context.Background(), f.Kind)
	if err != nil {
		return err
	}
	printJSON(sts)
	return nil
}

// Health runs one health check on the daemon and prints the classification.
func (c *command) Health(f ServiceFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if f.Name == "" {
		return fmt.Errorf("service name is required")
	}
	hs, err := cl.Health(context.Background(), f.Name)
	if err != nil {
		return err
	}
	printJSON(hs)
	return nil
}

// Validate re-checks a service's static configuration on the daemon.
func (c *command) Validate(f ServiceFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if f.Name == "" {
		return fmt.Errorf("service name is required")
	}
	vr, err := cl.Validate(context.Background(), f.Name)
	if err != nil {
		return err
	}
	printJSON(vr)
	return nil
}

// Cleanup terminates whatever orphaned process occupies the service's port
// and settles the record at stopped.
func (c *command) Cleanup(f ServiceFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if f.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if err := cl.Cleanup(context.Background(), f.Name); err != nil {
		return err
	}
	return c.printStatus(cl, f.Name)
}

// StartAll starts every enabled service, optionally one kind only, then
// prints the resulting listing.
func (c *command) StartAll(f BulkFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if err := cl.StartAll(context.Background(), f.Kind); err != nil {
		return err
	}
	sts, err := cl.StatusAll(context.Background(), f.Kind)
	if err != nil {
		return err
	}
	printJSON(sts)
	return nil
}

// StopAll stops every service, disabled ones included, optionally one kind
// only, then prints the resulting listing.
func (c *command) StopAll(f BulkFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if err := cl.StopAll(context.Background(), f.Kind); err != nil {
		return err
	}
	sts, err := cl.StatusAll(context.Background(), f.Kind)
	if err != nil {
		return err
	}
	printJSON(sts)
	return nil
}

// Reconcile triggers one corrective pass over every service and prints the
// corrected listing.
func (c *command) Reconcile(f ReconcileFlags) error {
	cl, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if err := cl.Reconcile(context.Background()); err != nil {
		return err
	}
	sts, err := cl.StatusAll(context.Background(), "")
	if err != nil {
		return err
	}
	printJSON(sts)
	return nil
}
