package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/bootstrap"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/lifecycle"
	"studio/internal/notify"
)

const usage = `usage: genctl <command> [flags]

commands:
  image    submit an image job and wait for its files
  video    submit a video job, optionally waiting for the artifact
  refresh  check one video task now
  resume   attach pollers to every pending task, optionally waiting
  history  list stored records
  watch    print completion events published on Redis
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).
		Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Str("cmd", "genctl").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var run func(context.Context, *bootstrap.Runtime, []string) error
	switch cmd {
	case "image":
		run = runImage
	case "video":
		run = runVideo
	case "refresh":
		run = runRefresh
	case "resume":
		run = runResume
	case "history":
		run = runHistory
	case "watch":
		run = runWatch
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	rt, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		exitWithError(err)
	}
	runErr := run(ctx, rt, args)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown incomplete")
	}
	if runErr != nil {
		exitWithError(runErr)
	}
}

func apiKeyFlag(fs *flag.FlagSet) *string {
	return fs.String("key", os.Getenv("GEN_API_KEY"), "remote API key (defaults to GEN_API_KEY)")
}

func runImage(ctx context.Context, rt *bootstrap.Runtime, args []string) error {
	fs := flag.NewFlagSet("image", flag.ExitOnError)
	key := apiKeyFlag(fs)
	prompt := fs.String("prompt", "", "image prompt")
	negative := fs.String("negative", "", "negative prompt")
	model := fs.String("model", "", "image model")
	aspect := fs.String("aspect", "1:1", "aspect ratio (1:1, 16:9, 9:16, 4:3, 3:4)")
	n := fs.Int("n", 1, "number of images (1-10)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*prompt) == "" {
		return errors.New("-prompt is required")
	}
	res, err := rt.Coordinator.SubmitImage(ctx, *key, lifecycle.ImageParams{
		Prompt:         *prompt,
		NegativePrompt: *negative,
		Model:          *model,
		AspectRatio:    *aspect,
		NumImages:      *n,
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runVideo(ctx context.Context, rt *bootstrap.Runtime, args []string) error {
	fs := flag.NewFlagSet("video", flag.ExitOnError)
	key := apiKeyFlag(fs)
	prompt := fs.String("prompt", "", "video prompt")
	system := fs.String("system", "", "system context")
	storyboard := fs.String("storyboard", "", "storyboard")
	negative := fs.String("negative", "", "negative prompt")
	model := fs.String("model", "", "video model")
	aspect := fs.String("aspect", "16:9", "aspect ratio (16:9 or 9:16)")
	duration := fs.Int("duration", 0, "clip length in seconds (0 uses the provider default)")
	reference := fs.String("reference", "", "path of a PNG reference image")
	wait := fs.Bool("wait", true, "wait until the task is finished")
	_ = fs.Parse(args)

	if strings.TrimSpace(*prompt) == "" && strings.TrimSpace(*storyboard) == "" {
		return errors.New("-prompt or -storyboard is required")
	}
	params := lifecycle.VideoParams{
		Prompt:         *prompt,
		SystemContext:  *system,
		Storyboard:     *storyboard,
		NegativePrompt: *negative,
		Model:          *model,
		AspectRatio:    *aspect,
		Duration:       *duration,
	}
	if *reference != "" {
		data, err := os.ReadFile(*reference)
		if err != nil {
			return fmt.Errorf("read reference image: %w", err)
		}
		params.ReferenceImage = data
	}

	sub, err := rt.Coordinator.SubmitVideo(ctx, *key, params)
	if err != nil {
		return err
	}
	if !*wait || sub.Status.IsTerminal() {
		return printJSON(sub)
	}
	if err := waitForPollers(ctx, rt, sub.TaskID); err != nil {
		return err
	}
	return printRecord(ctx, rt, sub.ID)
}

func runRefresh(ctx context.Context, rt *bootstrap.Runtime, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	key := apiKeyFlag(fs)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: genctl refresh [-key K] <task_id>")
	}
	snap, err := rt.Coordinator.ForceRefresh(ctx, fs.Arg(0), *key)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func runResume(ctx context.Context, rt *bootstrap.Runtime, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	key := apiKeyFlag(fs)
	wait := fs.Bool("wait", false, "wait until every resumed task is finished")
	_ = fs.Parse(args)

	if strings.TrimSpace(*key) == "" {
		return domain.ErrMissingCredential
	}
	started, err := rt.Coordinator.ResumeAll(ctx, *key)
	if err != nil {
		return err
	}
	if *wait {
		if err := waitForPollers(ctx, rt, ""); err != nil {
			return err
		}
	}
	return printJSON(map[string]any{
		"started": started,
		"metrics": rt.Coordinator.Metrics(),
	})
}

func runHistory(ctx context.Context, rt *bootstrap.Runtime, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	kind := fs.String("type", "", "image or video")
	status := fs.String("status", "", "status filter")
	search := fs.String("search", "", "prompt substring")
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 20, "page size")
	_ = fs.Parse(args)

	res, err := rt.Records.List(ctx, domain.GenerationFilter{
		Type:     domain.GenerationType(*kind),
		Status:   domain.Status(*status),
		Search:   *search,
		Page:     *page,
		PageSize: *size,
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runWatch(ctx context.Context, rt *bootstrap.Runtime, args []string) error {
	if rt.Redis == nil {
		return errors.New("REDIS_ADDR is required to watch events")
	}
	sub := rt.Events.Subscribe()
	defer sub.Close()
	if err := rt.Redis.Forward(ctx, notify.Sink(rt.Events)); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			_ = enc.Encode(ev)
		}
	}
}

// waitForPollers blocks until taskID (or every task when empty) has no
// running poller.
func waitForPollers(ctx context.Context, rt *bootstrap.Runtime, taskID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		active := rt.Coordinator.Active()
		if taskID == "" && len(active) == 0 {
			return nil
		}
		if taskID != "" && !slices.Contains(active, taskID) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printRecord(ctx context.Context, rt *bootstrap.Runtime, id string) error {
	g, ok, err := rt.Records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return printJSON(g)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "genctl: %v\n", err)
	os.Exit(1)
}
