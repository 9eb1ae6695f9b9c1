package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"adminverify/browser"
)

const failureScreenshotTimeout = 5 * time.Second

// Result describes a successful run.
type Result struct {
	Branch         Branch
	ScreenshotPath string
	TabBox         browser.BoundingBox
	Vision         *Verdict
}

// Verifier logs into the admin app, opens the dashboard, asserts the tab is
// visible and saves a screenshot as evidence.
type Verifier struct {
	cfg     Config
	acquire AcquireFunc
	vision  *VisionChecker
	logger  *slog.Logger
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url required")
	}
	if cfg.TabName == "" {
		return nil, errors.New("tab name required")
	}
	if cfg.ScreenshotPath == "" {
		return nil, errors.New("screenshot path required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	acquire := cfg.Acquire
	if acquire == nil {
		acquire = AcquireBrowser(cfg, logger)
	}
	v := &Verifier{cfg: cfg, acquire: acquire, logger: logger}
	if cfg.VisionModel != "" {
		client := cfg.OpenAI
		if client == nil {
			if cfg.OpenAIAPIKey == "" {
				return nil, errors.New("OPENAI_API_KEY is required when VERIFY_VISION_MODEL is set")
			}
			newClient := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
			client = &newClient
		}
		vision, err := NewVisionChecker(client, cfg.VisionModel, logger)
		if err != nil {
			return nil, err
		}
		v.vision = vision
	}
	return v, nil
}

// Run performs one verification. The browser is released on every path.
func (v *Verifier) Run(ctx context.Context) (*Result, error) {
	if v.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.RunTimeout)
		defer cancel()
	}
	evidence, err := newArtifact(v.cfg.ScreenshotPath)
	if err != nil {
		return nil, fmt.Errorf("screenshot path: %w", err)
	}
	if err := evidence.remove(); err != nil {
		return nil, fmt.Errorf("remove stale screenshot: %w", err)
	}

	session, err := v.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			v.logger.Warn("release browser", "err", err)
		}
	}()

	page := session.Page()
	result, err := v.run(ctx, page, evidence)
	if err != nil {
		v.captureFailure(ctx, page)
		return nil, err
	}
	return result, nil
}

func (v *Verifier) run(ctx context.Context, page Page, evidence *artifact) (*Result, error) {
	adminURL := v.cfg.AdminURL()
	v.logger.Info("opening admin", "url", adminURL)
	if err := page.Goto(ctx, adminURL); err != nil {
		return nil, fmt.Errorf("admin: %w", err)
	}
	auth := &authenticator{
		creds:    v.cfg.Credentials,
		adminURL: adminURL,
		timeout:  v.cfg.NavigationTimeout,
		logger:   v.logger,
	}
	branch, err := auth.authenticate(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	v.logger.Info("authenticated", "branch", branch)

	dashboardURL := v.cfg.DashboardURL()
	if err := page.Goto(ctx, dashboardURL); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	box, err := v.assertTab(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	format := evidence.format()
	shot, err := page.Screenshot(ctx, browser.ScreenshotOptions{Format: format})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	result := &Result{Branch: branch, TabBox: box}
	if v.vision != nil {
		verdict, err := v.vision.Confirm(ctx, shot, format, v.cfg.TabName)
		if err != nil {
			return nil, fmt.Errorf("vision: %w", err)
		}
		if !verdict.Visible {
			reason := verdict.Reason
			if reason == "" {
				reason = "model reported the tab as not visible"
			}
			return nil, fmt.Errorf("vision: %w", &VerificationFailure{Tab: v.cfg.TabName, Cause: errors.New(reason)})
		}
		result.Vision = &verdict
	}
	if v.cfg.Annotate && !box.Empty() {
		annotated, err := browser.AnnotateScreenshot(shot, box, v.cfg.TabName, page.DevicePixelRatio(ctx), format)
		if err != nil {
			return nil, fmt.Errorf("annotate screenshot: %w", err)
		}
		shot = annotated
	}
	path, err := evidence.write(shot)
	if err != nil {
		return nil, fmt.Errorf("save screenshot: %w", err)
	}
	result.ScreenshotPath = path
	v.logger.Info("tab verified", "tab", v.cfg.TabName, "screenshot", path)
	return result, nil
}

func (v *Verifier) assertTab(ctx context.Context, page Page) (browser.BoundingBox, error) {
	el, err := page.GetByRole("tab", v.cfg.TabName, true).ExpectVisible(ctx, v.cfg.ExpectTimeout)
	if err != nil {
		if !assertionFailure(err) {
			return browser.BoundingBox{}, err
		}
		if names, nameErr := page.AccessibleNames(ctx, "tab"); nameErr == nil {
			v.logger.Info("visible tabs", "names", strings.Join(names, ", "))
		}
		return browser.BoundingBox{}, &VerificationFailure{Tab: v.cfg.TabName, Cause: err}
	}
	box, err := el.GetBoundingBox(ctx)
	if err != nil {
		v.logger.Debug("tab bounding box", "err", err)
		return browser.BoundingBox{}, nil
	}
	return box, nil
}

// captureFailure writes a best-effort screenshot when a failure path is
// configured. It never touches the evidence path.
func (v *Verifier) captureFailure(ctx context.Context, page Page) {
	if v.cfg.FailureScreenshotPath == "" {
		return
	}
	target, err := newArtifact(v.cfg.FailureScreenshotPath)
	if err != nil {
		v.logger.Warn("failure screenshot path", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureScreenshotTimeout)
	defer cancel()
	shot, err := page.Screenshot(ctx, browser.ScreenshotOptions{Format: target.format()})
	if err != nil {
		v.logger.Warn("failure screenshot", "err", err)
		return
	}
	path, err := target.write(shot)
	if err != nil {
		v.logger.Warn("failure screenshot", "err", err)
		return
	}
	v.logger.Info("failure screenshot saved", "path", path)
}

// artifact is a file written through browser.FileSystem. Relative paths are
// rooted at the working directory, absolute ones at their own directory.
type artifact struct {
	fs   *browser.FileSystem
	name string
}

func newArtifact(path string) (*artifact, error) {
	root, name := "", path
	if filepath.IsAbs(path) {
		root, name = filepath.Dir(path), filepath.Base(path)
	}
	fs, err := browser.NewFileSystem(root)
	if err != nil {
		return nil, err
	}
	return &artifact{fs: fs, name: name}, nil
}

func (a *artifact) format() string {
	switch strings.ToLower(filepath.Ext(a.name)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".webp":
		return "webp"
	default:
		return "png"
	}
}

func (a *artifact) remove() error {
	return a.fs.Remove(a.name)
}

func (a *artifact) write(data []byte) (string, error) {
	return a.fs.WriteFile(a.name, data)
}
