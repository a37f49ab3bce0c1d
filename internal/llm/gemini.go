package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/irlmbm/companion-backend/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
type Gemini struct {
	model *genai.GenerativeModel
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	ctx: 上下文，用于控制客户端的生命周期。
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
//	systemPrompt: 固定的系统提示。
//
// 返回值:
//
//	*Gemini: 新创建的 Gemini 客户端实例。
//	error: 如果无法创建 GenAI 客户端，则返回错误。
func NewGemini(ctx context.Context, model, apiKey, systemPrompt string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	generativeModel := client.GenerativeModel(model)
	if systemPrompt != "" {
		generativeModel.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	return &Gemini{model: generativeModel}, nil
}

// GenerateContent 向 Gemini API 发送请求并返回响应。
// 每次调用都基于请求中携带的上下文窗口开启一个新的聊天会话，
// 会话之间不共享任何状态。
func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	cs := g.model.StartChat()
	cs.History = toGenaiHistory(req.History)

	resp, err := cs.SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		return nil, err
	}

	return fromGenaiResponse(resp)
}

// toGenaiHistory 将上下文窗口转换为 GenAI 的内容切片。
func toGenaiHistory(turns []models.ChatTurn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		history = append(history, &genai.Content{
			Role:  string(t.Role),
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return history
}

// fromGenaiResponse 提取首个候选回复中的全部文本部分。
func fromGenaiResponse(resp *genai.GenerateContentResponse) (*models.GenerateContentResponse, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini 返回了空的候选回复")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	return &models.GenerateContentResponse{
		Text:       text,
		CreateTime: time.Now().UTC(),
	}, nil
}
