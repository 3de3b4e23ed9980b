package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// command binds the CLI handlers to the shared flags.
type command struct {
	global *GlobalFlags
}

// apiClient resolves the daemon client for a command, failing fast when
// the daemon is not up.
func (c command) apiClient(f APIFlags) (*APIClient, error) {
	client := NewAPIClient(f.URL, f.Timeout)
	if !client.IsReachable() {
		return nil, fmt.Errorf("daemon not reachable at %s - start it first with 'warden serve'", client.baseURL)
	}
	return client, nil
}

func (c command) Start(f StartFlags) error {
	client, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	st, err := client.Start(f.Workspace, f.Command)
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

func (c command) Stop(f StopFlags) error {
	client, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	st, err := client.Stop(f.Workspace)
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

func (c command) StopAll(f APIFlags) error {
	client, err := c.apiClient(f)
	if err != nil {
		return err
	}
	stopped, err := client.StopAll()
	if err != nil {
		return err
	}
	printJSON(map[string][]int{"stopped": stopped})
	return nil
}

func (c command) Status(f StatusFlags) error {
	client, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	if f.Workspace != "" {
		st, err := client.Status(f.Workspace)
		if err != nil {
			return err
		}
		printJSON(st)
		return nil
	}
	sts, err := client.StatusAll()
	if err != nil {
		return err
	}
	printJSON(sts)
	return nil
}

func (c command) Logs(f LogsFlags) error {
	client, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	chunk, err := client.Logs(f.Workspace, f.TailBytes)
	if err != nil {
		return err
	}
	if chunk.Truncated {
		_, _ = fmt.Fprintf(os.Stderr, "(truncated; full log at %s)\n", chunk.Path)
	}
	fmt.Print(chunk.Content)
	return nil
}

func (c command) Processes(f ProcessesFlags) error {
	client, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	if f.Kill {
		killed, err := client.KillOrphans()
		if err != nil {
			return err
		}
		printJSON(map[string][]int{"killed": killed})
		return nil
	}
	procs, err := client.Processes()
	if err != nil {
		return err
	}
	printJSON(procs)
	return nil
}

func (c command) Reconcile(f APIFlags) error {
	client, err := c.apiClient(f)
	if err != nil {
		return err
	}
	rep, err := client.Reconcile()
	if err != nil {
		return err
	}
	printJSON(rep)
	return nil
}

func (c command) AutoStart(f AutoStartFlags) error {
	client, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	started, err := client.AutoStart(f.Workspace)
	if err != nil {
		return err
	}
	printJSON(map[string]bool{"started": started})
	return nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(string(b))
}
