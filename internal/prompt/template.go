package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/iyou00/chatui/internal/models"
)

// TemplateStore looks up saved prompt templates.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id uint) (string, error)
}

// DefaultSystemPrompt is used when a task names neither inline prompt text
// nor a template.
const DefaultSystemPrompt = `你是一名专业的群聊分析师。请阅读提供的群聊记录，输出一份完整的 HTML 报告。

报告需包含：
1. 概览：讨论主题、活跃时段、参与人数。
2. 热点话题：每个话题的要点和代表性发言。
3. 重要信息：决定、待办事项、链接与资源。
4. 成员活跃度：发言最多的成员及其主要观点。

输出要求：
- 只输出 HTML，从 <!DOCTYPE html> 开始，到 </html> 结束。
- 使用内联 CSS，页面在手机和电脑上都能正常阅读。
- 不要编造记录中没有的内容。`

// SystemPromptFor returns the system prompt for task: inline text wins,
// then the referenced template, then DefaultSystemPrompt.
func SystemPromptFor(ctx context.Context, task *models.Task, store TemplateStore) (string, error) {
	if text := strings.TrimSpace(task.PromptText); text != "" {
		return text, nil
	}
	if task.PromptTemplateID != nil && store != nil {
		text, err := store.GetTemplate(ctx, *task.PromptTemplateID)
		if err != nil {
			return "", fmt.Errorf("prompt: load template %d: %w", *task.PromptTemplateID, err)
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return DefaultSystemPrompt, nil
}
