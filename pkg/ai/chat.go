package ai

import (
	"context"
	"sync"
)

// SystemInstruction is the fixed persona for the Aman family assistant.
const SystemInstruction = `أنت مساعد طبي ذكي "أمان" متخصص في رعاية كبار السن ومساعدة العائلات في تنظيم ملفاتهم الطبية.
تحدث بلهجة أردنية/فلسطينية ودودة ومحترمة (يا خالة، يا عمي).
مهمتك:
1. تحليل التقارير الطبية والوصفات.
2. تنظيم مواعيد الأدوية والزيارات.
3. تقديم نصائح صحية عامة بناءً على البيانات المتوفرة.
4. حساب المصاريف الطبية وتوزيعها على أفراد العائلة.
ملاحظة: لا تقدم تشخيصاً طبياً نهائياً، دائماً انصح بمراجعة الطبيب المختص.`

const (
	// FallbackReply is shown when the model returns an empty reply.
	FallbackReply = "عذراً، لم أستطع الرد."
	// ErrorReply is recorded as the assistant turn when the call fails.
	ErrorReply = "حدث خطأ في الاتصال."
)

const extendedThinkingBudget = 32768

// ChatSession is a stateful conversation seeded with the Aman persona.
// Turns are strictly ordered; toggling extended reasoning means starting a
// new session, history does not carry over.
type ChatSession struct {
	mu             sync.Mutex
	client         *GeminiClient
	model          string
	thinkingBudget int
	turns          []Turn
}

// NewChatSession opens a fresh session. extendedReasoning enables the
// thinking budget for every turn of this session.
func NewChatSession(client *GeminiClient, model string, extendedReasoning bool) *ChatSession {
	budget := 0
	if extendedReasoning {
		budget = extendedThinkingBudget
	}
	return &ChatSession{client: client, model: model, thinkingBudget: budget}
}

// ExtendedReasoning reports whether this session thinks before replying.
func (s *ChatSession) ExtendedReasoning() bool {
	return s.thinkingBudget > 0
}

// Send appends the user's message to the transcript, awaits the model, and
// appends the reply. The user turn is kept even when the call fails; the
// failure is recorded as an error reply so the transcript stays coherent.
func (s *ChatSession) Send(ctx context.Context, text string) (string, error) {
	return s.send(ctx, TextPart(text))
}

// SendAudio sends one base64 PCM16 audio clip as the user turn.
func (s *ChatSession) SendAudio(ctx context.Context, pcmBase64, mimeType string) (string, error) {
	return s.send(ctx, FilePart(pcmBase64, mimeType))
}

func (s *ChatSession) send(ctx context.Context, part Part) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: "user", Parts: []Part{part}})
	reply, err := s.client.Chat(ctx, s.model, SystemInstruction, s.turns, s.thinkingBudget)
	if err != nil {
		s.turns = append(s.turns, Turn{Role: "model", Parts: []Part{TextPart(ErrorReply)}})
		return "", err
	}
	if reply == "" {
		reply = FallbackReply
	}
	s.turns = append(s.turns, Turn{Role: "model", Parts: []Part{TextPart(reply)}})
	return reply, nil
}

// Transcript returns a copy of the ordered turns so far.
func (s *ChatSession) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}
