package control

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"livesub/internal/config"
)

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// known ggml models for the local whisper backend.
var modelRegistry = []string{
	"ggml-base.bin",
	"ggml-base.en.bin",
	"ggml-small.bin",
	"ggml-small-q5_1.bin",
	"ggml-medium-q5_1.bin",
	"ggml-large-v3-turbo-q8_0.bin",
}

func knownModel(name string) bool {
	for _, n := range modelRegistry {
		if n == name {
			return true
		}
	}
	return false
}

func modelDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "models")
}

// resolveModel maps a bare model name into the model directory and leaves
// paths untouched.
func resolveModel(cfg *config.Config, val string) string {
	if strings.ContainsRune(val, filepath.Separator) {
		return val
	}
	return filepath.Join(modelDir(cfg), val)
}

// NewModelsCmd wires up the models subcommands (list/download/set).
func NewModelsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List/download/set whisper.cpp models for the local backend",
	}
	cmd.AddCommand(newModelsListCmd(cfgPath))
	cmd.AddCommand(newModelsDownloadCmd(cfgPath))
	cmd.AddCommand(newModelsSetCmd(cfgPath))
	return cmd
}

func newModelsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known models and those present locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			local := map[string]bool{}
			entries, _ := os.ReadDir(modelDir(cfg))
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".bin") {
					local[e.Name()] = true
				}
			}
			names := append([]string(nil), modelRegistry...)
			for n := range local {
				if !knownModel(n) {
					names = append(names, n)
				}
			}
			sort.Strings(names)
			for _, n := range names {
				var marks []string
				if local[n] {
					marks = append(marks, "downloaded")
				}
				if resolveModel(cfg, n) == cfg.ASR.ModelPath {
					marks = append(marks, "active")
				}
				line := "- " + n
				if len(marks) > 0 {
					line += " (" + strings.Join(marks, ", ") + ")"
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newModelsDownloadCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <model>",
		Short: "Download a model from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			name := args[0]
			if !knownModel(name) {
				return fmt.Errorf("unknown model %q; run models list", name)
			}
			dest := resolveModel(cfg, name)
			if err := downloadModel(cmd.Context(), modelBaseURL+name, dest, cmd.OutOrStdout()); err != nil {
				return err
			}
			if set, _ := cmd.Flags().GetBool("set"); set {
				return setModel(cmd.OutOrStdout(), cfg, dest)
			}
			return nil
		},
	}
	cmd.Flags().Bool("set", false, "also make it the active model")
	return cmd
}

func newModelsSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <model-name-or-path>",
		Short: "Set asr.model_path in config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			return setModel(cmd.OutOrStdout(), cfg, resolveModel(cfg, args[0]))
		},
	}
}

// NewSetupCmd downloads the configured model if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download the configured whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			modelPath := os.ExpandEnv(cfg.ASR.ModelPath)
			if _, err := os.Stat(modelPath); err == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "model already present at", modelPath)
				return nil
			}
			name := filepath.Base(modelPath)
			if !knownModel(name) {
				return fmt.Errorf("%s is not a known model; download it manually or run models set", name)
			}
			return downloadModel(cmd.Context(), modelBaseURL+name, modelPath, cmd.OutOrStdout())
		},
	}
}

func setModel(w io.Writer, cfg *config.Config, path string) error {
	cfg.ASR.ModelPath = path
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "model set to %s\n", path)
	return nil
}

// downloadModel fetches url into dest through a .part file so an interrupted
// download never leaves a truncated model behind.
func downloadModel(ctx context.Context, url, dest string, w io.Writer) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "downloading %s -> %s\n", url, dest)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "model download complete (%.1f MB)\n", float64(n)/(1<<20))
	return nil
}
