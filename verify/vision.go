package verify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"
	"github.com/tidwall/gjson"

	"adminverify/verify/prompts"
)

// Verdict is the vision model's answer about the evidence screenshot.
type Verdict struct {
	Visible bool
	Reason  string
}

// VisionChecker asks a vision model whether the tab is visible on a screenshot.
type VisionChecker struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewVisionChecker(client *openai.Client, model string, logger *slog.Logger) (*VisionChecker, error) {
	if client == nil {
		return nil, errors.New("openai client required")
	}
	if model == "" {
		return nil, errors.New("vision model required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionChecker{client: client, model: model, logger: logger}, nil
}

// Confirm sends the screenshot with the confirm_tab prompt. format is the
// image format of screenshot (png, jpeg or webp).
func (c *VisionChecker) Confirm(ctx context.Context, screenshot []byte, format, tab string) (Verdict, error) {
	prompt, err := prompts.Load("confirm_tab.md", tab)
	if err != nil {
		return Verdict{}, err
	}
	imageURL := fmt.Sprintf("data:%s;base64,%s", mimeType(format), base64.StdEncoding.EncodeToString(screenshot))
	content := responses.ResponseInputMessageContentListParam{
		{OfInputText: &responses.ResponseInputTextParam{Text: prompt, Type: "input_text"}},
		{OfInputImage: &responses.ResponseInputImageParam{ImageURL: openai.String(imageURL), Detail: responses.ResponseInputImageDetailAuto, Type: "input_image"}},
	}
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: responses.ResponseInputParam{
			responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser),
		}},
	}
	c.logger.Debug("vision request", "model", c.model, "tab", tab, "image_bytes", len(screenshot))
	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Verdict{}, fmt.Errorf("vision request: %w", err)
	}
	text := strings.TrimSpace(extractOutputText(resp.Output))
	c.logger.Debug("vision response", "id", resp.ID, "text", text)
	return parseVerdict(text)
}

func extractOutputText(items []responses.ResponseOutputItemUnion) string {
	var builder strings.Builder
	for _, item := range items {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			switch content.Type {
			case "output_text":
				builder.WriteString(content.Text)
			case "refusal":
				builder.WriteString(content.Refusal)
			}
		}
	}
	return builder.String()
}

// parseVerdict accepts the JSON object alone or wrapped in prose or a code
// fence.
func parseVerdict(text string) (Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Verdict{}, fmt.Errorf("vision answer is not JSON: %q", text)
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		return Verdict{}, fmt.Errorf("vision answer is not JSON: %q", text)
	}
	parsed := gjson.Parse(raw)
	visible := parsed.Get("visible")
	if visible.Type != gjson.True && visible.Type != gjson.False {
		return Verdict{}, fmt.Errorf("vision answer lacks a boolean \"visible\": %q", raw)
	}
	return Verdict{Visible: visible.Bool(), Reason: parsed.Get("reason").String()}, nil
}

func mimeType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
