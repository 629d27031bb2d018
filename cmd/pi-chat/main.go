// pi-chat is a terminal chat client for a running pi agent.
//
// It connects to the agent's RPC port, renders the conversation with a
// bubbletea UI, and can optionally spawn the agent itself first.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/adragomir/pi.nvim/internal/config"
	"github.com/adragomir/pi.nvim/internal/rpc"
	"github.com/adragomir/pi.nvim/internal/session"
	"github.com/adragomir/pi.nvim/internal/termagent"
	"github.com/adragomir/pi.nvim/internal/ui/chat"
	"github.com/adragomir/pi.nvim/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("pi-chat", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", defaultConfigPath(), "Path to the YAML config file")
	host := fs.String("host", "", "Agent host (overrides config)")
	port := fs.Int("port", 0, "Agent port (overrides config)")
	logFile := fs.String("log-file", "", "Write logs to this file instead of stderr")
	spawnAgent := fs.String("spawn-agent", "", "Spawn this pi binary in RPC mode before connecting")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port > 0 {
		cfg.Port = *port
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	file, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		fmt.Fprintln(errOut, "pi-chat needs an interactive terminal")
		return 1
	}

	if *spawnAgent != "" {
		proc := termagent.NewProcess(*spawnAgent, "", []string{
			"--mode", "rpc", "--port", fmt.Sprintf("%d", cfg.Port),
		}, termagent.WithOutput(io.Discard))
		if err := proc.Start(); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer func() { _ = proc.Kill() }()
		// Give the agent a moment to bind its listener.
		time.Sleep(500 * time.Millisecond)
	}

	sess := session.New(
		session.WithTransport(rpc.New(rpc.WithRequestTimeout(cfg.RequestTimeout()))),
		session.WithLivenessInterval(cfg.LivenessInterval(), cfg.LivenessDelay()),
		session.WithRenderInterval(cfg.RenderThrottle()),
	)
	if err := sess.Connect(cfg.Host, cfg.Port); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer func() { _ = sess.Close() }()

	program := tea.NewProgram(chat.NewModel(sess), tea.WithAltScreen(), tea.WithOutput(file))
	sess.OnRender(func() {
		program.Send(chat.RenderMsg{})
	})

	if _, err := program.Run(); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pi-chat.yaml"
	}
	return filepath.Join(home, ".config", "pi", "chat.yaml")
}
