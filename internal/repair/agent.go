package repair

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/goccy/go-json"

	"texbridge/internal/logger"
	"texbridge/internal/types"
)

const (
	DefaultAgentModel = "gpt-4o"
	// DefaultAgentSteps bounds the ReAct loop; each tool round trip is two steps.
	DefaultAgentSteps = 12
	// maxToolText bounds text echoed back to the model.
	maxToolText = 30000
)

// AgentConfig configures AgentRepairer.
type AgentConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxSteps int
	// AllowNoGain is passed to the gate behind check_candidate.
	AllowNoGain bool
}

// AgentRepairer repairs output with a ReAct agent on an OpenAI-compatible
// chat model. The agent can measure drafts with check_candidate before it
// answers; its final answer is the candidate.
type AgentRepairer struct {
	cfg AgentConfig
}

// NewAgentRepairer creates an agent repairer, filling in defaults.
func NewAgentRepairer(cfg AgentConfig) *AgentRepairer {
	if cfg.Model == "" {
		cfg.Model = DefaultAgentModel
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultAgentSteps
	}
	return &AgentRepairer{cfg: cfg}
}

func (a *AgentRepairer) Name() string { return "agent" }

// Tool parameter structs with jsonschema tags for eino's InferTool

// CheckCandidateParams parameters for check_candidate tool
type CheckCandidateParams struct {
	Text string `json:"text" jsonschema:"description=The complete candidate document in the target language"`
}

// session holds the state tools share during one Repair call.
type session struct {
	req  *Request
	gate Gate
	// best is the last draft check_candidate accepted.
	best string
}

// checkCandidate runs the acceptance gate on a draft.
func (s *session) checkCandidate(text string) string {
	v := s.gate.Check(s.req.Metrics, text)
	m, _ := json.Marshal(v.Metrics)
	if v.Accepted {
		s.best = text
		return fmt.Sprintf("ACCEPTED. metrics: %s", m)
	}
	return fmt.Sprintf("REJECTED: %s. metrics: %s", v.Reason, m)
}

// lossReport lists the recorded losses.
func (s *session) lossReport() (string, error) {
	data, err := json.MarshalIndent(s.req.Report, "", "  ")
	if err != nil {
		return "", err
	}
	return clip(string(data)), nil
}

// createTools creates the tools for the eino agent
func (s *session) createTools() ([]tool.BaseTool, error) {
	checkTool, err := utils.InferTool(
		"check_candidate",
		"Check a complete candidate document against the acceptance gate: no new parse errors, no lost structure and fewer loss markers. Returns ACCEPTED or REJECTED with the metrics.",
		func(ctx context.Context, params *CheckCandidateParams) (string, error) {
			return s.checkCandidate(params.Text), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create check_candidate tool: %w", err)
	}

	reportTool, err := utils.InferTool(
		"loss_report",
		"Return the loss report: every construct the converter could not translate faithfully, with its id, kind and source snippet.",
		func(ctx context.Context, params *struct{}) (string, error) {
			return s.lossReport()
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create loss_report tool: %w", err)
	}

	return []tool.BaseTool{checkTool, reportTool}, nil
}

// Repair runs the agent once. A final answer that is not a document falls
// back to the last draft check_candidate accepted.
func (a *AgentRepairer) Repair(ctx context.Context, req *Request) (string, error) {
	if a.cfg.APIKey == "" {
		return "", types.NewAppError(types.ErrConfig, "OpenAI API key is not configured", nil)
	}
	target := types.Lang(req.Report.TargetLang)
	s := &session{req: req, gate: Gate{Lang: target, AllowNoGain: a.cfg.AllowNoGain}}

	logger.Info("starting agent repair",
		logger.String("model", a.cfg.Model),
		logger.String("target", string(target)),
		logger.Int("losses", len(req.Report.Losses)))

	tools, err := s.createTools()
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create tools", err)
	}

	chatModelConfig := &openai.ChatModelConfig{
		Model:  a.cfg.Model,
		APIKey: a.cfg.APIKey,
	}
	if a.cfg.BaseURL != "" {
		chatModelConfig.BaseURL = a.cfg.BaseURL
	}
	chatModel, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return "", types.NewAppError(types.ErrAPICall, "failed to create chat model", err)
	}

	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
		MaxStep: a.cfg.MaxSteps,
		MessageModifier: func(ctx context.Context, input []*schema.Message) []*schema.Message {
			return append([]*schema.Message{schema.SystemMessage(buildSystemPrompt(target))}, input...)
		},
	})
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create ReAct agent", err)
	}

	response, err := agent.Generate(ctx, []*schema.Message{
		schema.UserMessage(buildUserMessage(req)),
	})
	if err != nil {
		logger.Error("agent repair failed", err)
		return "", types.NewAppError(types.ErrAPICall, "agent execution failed", err)
	}

	answer := ""
	if response != nil {
		answer = stripFence(response.Content)
	}
	if answer == "" || (s.best != "" && !s.gate.Check(req.Metrics, answer).Accepted) {
		if s.best == "" {
			return "", types.NewAppError(types.ErrRepair, "agent returned no candidate", nil)
		}
		logger.Debug("agent answer unusable, using last accepted draft")
		answer = s.best
	}
	return answer, nil
}

func buildSystemPrompt(target types.Lang) string {
	return fmt.Sprintf(`You repair machine-converted %[1]s documents.

The converter left inline loss markers (comments containing "texbridge:loss:") where it
could not translate a construct faithfully. Your job is to replace marked passthrough
content with correct %[1]s and remove the marker.

TOOLS:
- loss_report(): the list of losses with id, kind and source snippet
- check_candidate(text): run the acceptance gate on a complete draft

RULES:
1. Output must stay %[1]s. Do not introduce syntax errors.
2. Keep every heading, equation, figure, table, citation, reference, label and list item.
3. Only touch marked regions. Leave everything else byte for byte.
4. Remove a marker only when its construct is fixed.
5. Call check_candidate before answering. Answer with the complete document only, no explanations.`, target)
}

func buildUserMessage(req *Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Repair this %s output converted from %s.\n\n", req.Report.TargetLang, req.Report.SourceLang)
	fmt.Fprintf(&sb, "Loss markers: %d, losses recorded: %d.\n\n", req.Metrics.LossMarkers, len(req.Report.Losses))
	sb.WriteString("SOURCE:\n```\n")
	sb.WriteString(clip(req.Input))
	sb.WriteString("\n```\n\nOUTPUT:\n```\n")
	sb.WriteString(clip(req.Output))
	sb.WriteString("\n```\n")
	return sb.String()
}

const clipMark = "\n...[truncated]...\n"

// clip truncates long text to maxToolText bytes, keeping both ends. Cuts
// fall on rune boundaries.
func clip(s string) string {
	if len(s) <= maxToolText {
		return s
	}
	half := (maxToolText - len(clipMark)) / 2
	head := half
	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	tail := len(s) - half
	for tail < len(s) && !utf8.RuneStart(s[tail]) {
		tail++
	}
	return s[:head] + clipMark + s[tail:]
}

// stripFence removes a Markdown code fence around an answer.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimRight(s, " \n"), "```")
	return strings.TrimSpace(s) + "\n"
}
