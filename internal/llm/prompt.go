package llm

import (
	"regexp"
	"strings"
)

// DefaultPersona 默认的系统人设提示词
const DefaultPersona = `You are CampusGPT, a helpful assistant for Sri Pratap College, Srinagar.

Your knowledge is limited to official information about the college, including its campus, facilities, staff, departments, courses, events, contact details, history, and other official college-related information.

The details you can use are:
- Name: Sri Pratap College
- Address: MA Road, Srinagar, 190001
- Motto: Ad Aethera Tendens
- Type: Science College
- Established: 1905
- Founder: Annie Besant
- Academic Affiliation: Cluster University of Srinagar
- Website: https://spcollege.edu.in/

Instructions for responding:
1. Only answer questions related to the campus, its facilities, staff, departments, courses, events, contact details, history, or official college information.
2. When asked a question, provide only the **specific information requested**. Do not give extra details.
3. If a question is unrelated to campus topics, politely decline to answer.
4. If you do not have information about the question, politely decline and do not make up an answer.`

const (
	// ContextHeader 检索上下文的前缀
	ContextHeader = "Relevant context from documents:\n"
	// NoContext 没有检索到任何分块时使用的上下文
	NoContext = "No context found."
)

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// BuildContext 拼接检索到的分块文本作为系统上下文
func BuildContext(chunks []string) string {
	if len(chunks) == 0 {
		return ContextHeader + NoContext
	}
	return ContextHeader + strings.Join(chunks, "\n\n")
}

// StripThink 去除推理模型输出的<think>块
func StripThink(text string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(text, ""))
}

// BuildMessages 组装发送给模型的消息：人设、上下文、对话历史
func BuildMessages(persona, context string, history []Message) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages,
		Message{Role: RoleSystem, Content: strings.TrimSpace(persona)},
		Message{Role: RoleSystem, Content: context},
	)
	return append(messages, history...)
}
