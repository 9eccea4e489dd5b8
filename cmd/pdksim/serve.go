package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/caffeineduck/pdksim/executor"
	"github.com/caffeineduck/pdksim/hostfunc"
	"github.com/caffeineduck/pdksim/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve [plugin.wasm]",
	Short: "Start HTTP server around one plugin session",
	Long: `Start an HTTP server that keeps one plugin session alive and exposes it.

Endpoints:
  POST   /call/{fn}   Call an export; the request body is the input
  GET    /memory      Arena records, cursor and capacity
  GET    /vars        Variable store snapshot
  GET    /health      Health check

Calls are serialized. Guest console output goes to stderr.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Int64("max-input", 1<<20, "Max request body size")
	addSessionFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

type callResponse struct {
	Output     string `json:"output"`
	Code       int32  `json:"code"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type memoryResponse struct {
	Cursor   memory.Offset   `json:"cursor"`
	Capacity int             `json:"capacity"`
	Records  []memory.Record `json:"records"`
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	maxInput, _ := cmd.Flags().GetInt64("max-input")

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	path, err := s.pluginPath(args)
	if err != nil {
		return err
	}
	plugin, err := executor.LoadPlugin(path)
	if err != nil {
		return err
	}

	exec, err := executor.New(append(s.executorOptions(cmd), executor.WithPrecompile(plugin))...)
	if err != nil {
		return err
	}
	defer exec.Close()

	session, err := exec.NewSession(context.Background(), plugin, s.sessionOptions(cmd.ErrOrStderr())...)
	if err != nil {
		return err
	}
	defer session.Close()

	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("pdksim server listening", zap.String("addr", addr), zap.String("plugin", plugin.Name))

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(session, maxInput, s.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func newServer(session *executor.Session, maxInput int64, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /call/{fn}", func(w http.ResponseWriter, r *http.Request) {
		fn := r.PathValue("fn")
		input, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInput))
		if err != nil {
			http.Error(w, "input too large", http.StatusRequestEntityTooLarge)
			return
		}

		// The session outlives the request; only the session timeout ends a call.
		result := session.Call(context.WithoutCancel(r.Context()), fn, input)
		resp := callResponse{
			Output:     string(result.Output),
			Code:       result.Code,
			DurationMs: result.Duration.Milliseconds(),
		}
		if result.Error != nil {
			resp.Error = result.Error.Error()
			logger.Warn("call failed", zap.String("function", fn), zap.Error(result.Error))
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("GET /memory", func(w http.ResponseWriter, r *http.Request) {
		var resp memoryResponse
		err := session.Do(func(env *hostfunc.Env, _ *hostfunc.Registry) error {
			a := env.Arena()
			resp = memoryResponse{Cursor: a.Cursor(), Capacity: a.Capacity(), Records: a.Records()}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("GET /vars", func(w http.ResponseWriter, r *http.Request) {
		var vars map[string]uint64
		err := session.Do(func(env *hostfunc.Env, _ *hostfunc.Registry) error {
			vars = env.Vars().All()
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, vars)
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
