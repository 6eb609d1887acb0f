//go:build windows

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Every subcommand except run talks to an already-running instance over
// its local HTTP port, so the CLI works from any shell while the tray app
// owns the panel session.

func apiBase() string {
	port := os.Getenv("LEVELMGR_PORT")
	if port == "" {
		port = defaultConfig().ServerPort
	}
	return "http://localhost:" + port
}

var apiClient = &http.Client{Timeout: 10 * time.Second}

func apiGet(path string, out interface{}) error {
	resp, err := apiClient.Get(apiBase() + path)
	if err != nil {
		return fmt.Errorf("is the app running? %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func apiPost(path string, req, out interface{}) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := apiClient.Post(apiBase()+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("is the app running? %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "levelmgr",
		Short: "Hotkey-driven level visibility for the Mastercam Levels panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp()
		},
	}
	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newConnectCmd(),
		newToggleCmd(),
		newHotkeyCmd(),
		newGroupCmd(),
		newHistoryCmd(),
		newTreeCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the manager (tray window, hotkeys, local API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp()
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session state and the cached level table",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sv StatusView
			if err := apiGet("/api/status", &sv); err != nil {
				return err
			}
			fmt.Printf("session: %s", sv.Session)
			if sv.Stale {
				fmt.Print(" (stale)")
			}
			fmt.Printf("\n%s\n\n", sv.Message)
			for _, lv := range sv.Levels {
				line := fmt.Sprintf("  %4s  %-30s %s", lv.Number, lv.Name, lv.Hotkey)
				if lv.Group != "" {
					line += "  [" + lv.Group + "]"
				}
				fmt.Println(line)
			}
			for _, gv := range sv.Groups {
				fmt.Printf("  group %-28s %-10s %v\n", gv.Name, gv.Hotkey, gv.Levels)
			}
			return nil
		},
	}
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to the Levels panel (or refresh the level cache)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiPost("/api/connect", map[string]bool{}, nil); err != nil {
				return err
			}
			fmt.Println("connect requested")
			return nil
		},
	}
}

func newToggleCmd() *cobra.Command {
	var byName bool
	cmd := &cobra.Command{
		Use:   "toggle <number>... | --name <query>",
		Short: "Toggle visibility for level numbers (or one level by name)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				Toggled  []string `json:"toggled"`
				Failures int      `json:"failures"`
			}
			req := map[string]interface{}{"numbers": args}
			if byName {
				req = map[string]interface{}{"query": strings.Join(args, " ")}
			}
			if err := apiPost("/api/toggle", req, &res); err != nil {
				return err
			}
			fmt.Printf("toggled %v", res.Toggled)
			if res.Failures > 0 {
				fmt.Printf(", %d failed (stale handles? try connect)", res.Failures)
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().BoolVar(&byName, "name", false, "treat the arguments as a level name (fuzzy matched)")
	return cmd
}

func newHotkeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hotkey",
		Short: "Record or clear hotkey assignments",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "record <level-number | grp:Name>",
		Short: "Arm recording; the next chord pressed lands on the target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"action": "record", "target": args[0]}
			if err := apiPost("/api/hotkey", req, nil); err != nil {
				return err
			}
			fmt.Println("recording armed; press a combo (Esc cancels)")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <level-number | grp:Name>",
		Short: "Remove the target's hotkey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"action": "clear", "target": args[0]}
			if err := apiPost("/api/hotkey", req, nil); err != nil {
				return err
			}
			fmt.Println("cleared")
			return nil
		},
	})
	return cmd
}

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage level groups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <number> <number>...",
		Short: "Group two or more levels under one hotkey target",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				Name string `json:"name"`
			}
			req := map[string]interface{}{"action": "create", "members": args}
			if err := apiPost("/api/group", req, &res); err != nil {
				return err
			}
			fmt.Printf("created group %q\n", res.Name)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List groups and their members",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sv StatusView
			if err := apiGet("/api/status", &sv); err != nil {
				return err
			}
			for _, gv := range sv.Groups {
				fmt.Printf("%-30s %-10s %v\n", gv.Name, gv.Hotkey, gv.Levels)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "dissolve <name>",
		Short: "Dissolve a group (member hotkeys are untouched)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]interface{}{"action": "dissolve", "name": args[0]}
			if err := apiPost("/api/group", req, nil); err != nil {
				return err
			}
			fmt.Println("dissolved")
			return nil
		},
	})
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent toggle activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			var recs []ToggleRecord
			if err := apiGet(fmt.Sprintf("/api/history?limit=%d", limit), &recs); err != nil {
				return err
			}
			for _, r := range recs {
				mark := "ok"
				if !r.OK {
					mark = "FAIL"
				}
				fmt.Printf("%s  %-4s %4s  %-30s %s\n",
					r.Ts.Format("2006-01-02 15:04:05"), mark, r.Number, r.Name, r.Source)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max records to show")
	return cmd
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Dump the attached panel's automation tree (diagnostics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient.Get(apiBase() + "/api/tree")
			if err != nil {
				return fmt.Errorf("is the app running? %w", err)
			}
			defer resp.Body.Close()
			io.Copy(os.Stdout, resp.Body)
			return nil
		},
	}
}
