package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "two plain sentences",
			text: "Hello. How are you?",
			want: []string{"Hello.", "How are you?"},
		},
		{
			name: "punctuation cluster stays together",
			text: "What?! Really?",
			want: []string{"What?!", "Really?"},
		},
		{
			name: "closing quote attaches to its sentence",
			text: `She said "stop." Then she left.`,
			want: []string{`She said "stop."`, "Then she left."},
		},
		{
			name: "decimal point does not split",
			text: "It costs 3.50 euros. That is cheap.",
			want: []string{"It costs 3.50 euros.", "That is cheap."},
		},
		{
			name: "cjk terminators",
			text: "你好。你好吗？我很好！",
			want: []string{"你好。", "你好吗？", "我很好！"},
		},
		{
			name: "ellipsis terminates",
			text: "Well… maybe. Fine.",
			want: []string{"Well…", "maybe.", "Fine."},
		},
		{
			name: "cjk with no spaces between sentences",
			text: "他说：「走吧。」然后他离开了。",
			want: []string{"他说：「走吧。」", "然后他离开了。"},
		},
		{
			name: "no terminal punctuation keeps tail",
			text: "First. And then nothing",
			want: []string{"First.", "And then nothing"},
		},
		{
			name: "empty input",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestCountSentences(t *testing.T) {
	assert.Equal(t, 2, CountSentences("Hello. How are you?"))
	assert.Equal(t, 3, CountSentences("你好。你好吗？我很好！"))
	assert.Equal(t, 0, CountSentences(""))
}

func TestSplitParagraphs(t *testing.T) {
	text := "First paragraph line one.\nStill first.\n\nSecond paragraph.\n\n\n\nThird."
	paragraphs := SplitParagraphs(text)
	assert.Equal(t, []string{
		"First paragraph line one. Still first.",
		"Second paragraph.",
		"Third.",
	}, paragraphs)
}

func TestJoinParagraphsRoundTrip(t *testing.T) {
	paragraphs := []string{"One.", "Two.", "Three."}
	joined := JoinParagraphs(paragraphs)
	assert.Equal(t, "One.\n\nTwo.\n\nThree.", joined)
	assert.Equal(t, paragraphs, SplitParagraphs(joined))
}

func TestEnsureTerminalPunctuation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello", "Hello."},
		{"Hello.", "Hello."},
		{"Hello!", "Hello!"},
		{"你好。", "你好。"},
		{`He said "go"`, `He said "go."`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EnsureTerminalPunctuation(tt.in))
	}
}

func TestSplitSentencesRecoverText(t *testing.T) {
	text := "The fox ran. It jumped over the wall! Did anyone see it? No one did."
	sentences := SplitSentences(text)
	assert.Len(t, sentences, 4)
	assert.Equal(t, text, strings.Join(sentences, " "))
}
