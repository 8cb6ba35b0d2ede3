package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/exam_go_server/config"
	"github.com/qs3c/exam_go_server/internal/model"
)

func TestDecodeQuestions(t *testing.T) {
	t.Run("wrapper object form", func(t *testing.T) {
		raw := `{"questions": [{"question": "1 + 1 = ?", "type": "multiple_choice", "difficulty": "NB", "answer": "2"}]}`

		questions, err := DecodeQuestions(raw)
		require.NoError(t, err)
		require.Len(t, questions, 1)

		assert.Equal(t, "1 + 1 = ?", questions[0].Question)
		assert.Equal(t, model.TypeMultipleChoice, questions[0].Type)
		assert.Equal(t, model.DifficultyNB, questions[0].Difficulty)
		assert.Equal(t, "2", questions[0].Answer)
	})

	t.Run("top-level array form", func(t *testing.T) {
		raw := `[{"question": "\\int_0^1 x\\,dx = ?", "type": "calculation"}]`

		questions, err := DecodeQuestions(raw)
		require.NoError(t, err)
		require.Len(t, questions, 1)
		assert.Equal(t, model.TypeCalculation, questions[0].Type)
	})

	t.Run("empty questions gives ErrNoQuestions", func(t *testing.T) {
		_, err := DecodeQuestions(`{"questions": []}`)
		assert.ErrorIs(t, err, ErrNoQuestions)
	})

	t.Run("blank questions are dropped", func(t *testing.T) {
		raw := `{"questions": [{"question": "   "}, {"question": "valid"}]}`

		questions, err := DecodeQuestions(raw)
		require.NoError(t, err)
		require.Len(t, questions, 1)
		assert.Equal(t, "valid", questions[0].Question)
	})

	t.Run("all blank gives ErrNoQuestions", func(t *testing.T) {
		_, err := DecodeQuestions(`{"questions": [{"question": ""}]}`)
		assert.ErrorIs(t, err, ErrNoQuestions)
	})

	t.Run("invalid JSON gives ErrInvalidResponse", func(t *testing.T) {
		_, err := DecodeQuestions(`not json at all`)
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("empty string gives ErrInvalidResponse", func(t *testing.T) {
		_, err := DecodeQuestions("")
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("solution steps preserved", func(t *testing.T) {
		raw := `{"questions": [{"question": "solve x^2=4", "solution_steps": ["x^2=4", "x=\\pm 2"]}]}`

		questions, err := DecodeQuestions(raw)
		require.NoError(t, err)
		require.Len(t, questions, 1)
		assert.Equal(t, []string{"x^2=4", "x=\\pm 2"}, questions[0].SolutionSteps)
	})
}

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name           string
		input          ParsedQuestion
		wantType       string
		wantDifficulty string
	}{
		{
			name:           "valid values pass through",
			input:          ParsedQuestion{Question: "q", Type: "essay", Difficulty: "TH"},
			wantType:       model.TypeEssay,
			wantDifficulty: model.DifficultyTH,
		},
		{
			name:           "vietnamese type aliases",
			input:          ParsedQuestion{Question: "q", Type: "TN", Difficulty: "VDC"},
			wantType:       model.TypeMultipleChoice,
			wantDifficulty: model.DifficultyVDC,
		},
		{
			name:           "TL maps to essay",
			input:          ParsedQuestion{Question: "q", Type: "TL"},
			wantType:       model.TypeEssay,
			wantDifficulty: "",
		},
		{
			name:           "DS maps to true_false",
			input:          ParsedQuestion{Question: "q", Type: "DS"},
			wantType:       model.TypeTrueFalse,
			wantDifficulty: "",
		},
		{
			name:           "uppercase type normalized",
			input:          ParsedQuestion{Question: "q", Type: "FILL_BLANK"},
			wantType:       model.TypeFillBlank,
			wantDifficulty: "",
		},
		{
			name:           "lowercase difficulty normalized",
			input:          ParsedQuestion{Question: "q", Type: "calculation", Difficulty: "vd"},
			wantType:       model.TypeCalculation,
			wantDifficulty: model.DifficultyVD,
		},
		{
			name:           "unknown type becomes empty",
			input:          ParsedQuestion{Question: "q", Type: "riddle"},
			wantType:       "",
			wantDifficulty: "",
		},
		{
			name:           "unknown difficulty becomes empty",
			input:          ParsedQuestion{Question: "q", Type: "essay", Difficulty: "hard"},
			wantType:       model.TypeEssay,
			wantDifficulty: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.input
			NormalizeQuestion(&q)
			assert.Equal(t, tt.wantType, q.Type)
			assert.Equal(t, tt.wantDifficulty, q.Difficulty)
		})
	}
}

func TestNormalizeQuestion_TrimsFields(t *testing.T) {
	q := ParsedQuestion{
		Question:   "  x + y = ?  ",
		Type:       " essay ",
		Topic:      "  代数 ",
		Difficulty: " nb ",
		Answer:     " z ",
	}

	NormalizeQuestion(&q)

	assert.Equal(t, "x + y = ?", q.Question)
	assert.Equal(t, model.TypeEssay, q.Type)
	assert.Equal(t, "代数", q.Topic)
	assert.Equal(t, model.DifficultyNB, q.Difficulty)
	assert.Equal(t, "z", q.Answer)
}

func testParserConfig(apiKey string) *config.ParserConfig {
	return &config.ParserConfig{
		APIKey: apiKey,
		Models: map[string]string{
			"fast":     "gpt-4o-mini",
			"balanced": "gpt-4o-mini",
			"quality":  "gpt-4o",
		},
	}
}

func TestNewOpenAIExtractor(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		_, err := NewOpenAIExtractor(testParserConfig(""))
		assert.ErrorIs(t, err, ErrAPIKeyNotSet)
	})

	t.Run("with api key", func(t *testing.T) {
		ext, err := NewOpenAIExtractor(testParserConfig("sk-test"))
		require.NoError(t, err)
		assert.NotNil(t, ext)
	})
}

func TestOpenAIExtractor_ModelFor(t *testing.T) {
	ext, err := NewOpenAIExtractor(testParserConfig("sk-test"))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", ext.modelFor("fast"))
	assert.Equal(t, "gpt-4o", ext.modelFor("quality"))
	// 未配置的 speed 回退到 balanced
	assert.Equal(t, "gpt-4o-mini", ext.modelFor("unknown"))
}

func TestOpenAIExtractor_BuildUserMessage(t *testing.T) {
	ext, err := NewOpenAIExtractor(testParserConfig("sk-test"))
	require.NoError(t, err)

	t.Run("text content", func(t *testing.T) {
		_, err := ext.buildUserMessage(&Request{
			Content:  []byte("解方程 x^2 = 4"),
			MimeType: "text/plain",
		})
		assert.NoError(t, err)
	})

	t.Run("image content", func(t *testing.T) {
		_, err := ext.buildUserMessage(&Request{
			Content:  []byte{0x89, 0x50, 0x4e, 0x47},
			MimeType: "image/png",
		})
		assert.NoError(t, err)
	})

	t.Run("binary non-image content", func(t *testing.T) {
		_, err := ext.buildUserMessage(&Request{
			Content:  []byte{0xff, 0xfe, 0x00, 0x01},
			MimeType: "application/pdf",
		})
		assert.ErrorIs(t, err, ErrUnsupportedContent)
	})

	t.Run("vision flag unlocks binary content", func(t *testing.T) {
		// 同样的扫描件字节，开启 Vision 后按附件交给模型
		content := []byte{0xff, 0xfe, 0x00, 0x01}

		_, err := ext.buildUserMessage(&Request{
			Content:  content,
			MimeType: "application/pdf",
		})
		assert.ErrorIs(t, err, ErrUnsupportedContent)

		_, err = ext.buildUserMessage(&Request{
			Content:   content,
			MimeType:  "application/pdf",
			UseVision: true,
		})
		assert.NoError(t, err)
	})

	t.Run("empty text content", func(t *testing.T) {
		_, err := ext.buildUserMessage(&Request{
			Content:  []byte("   "),
			MimeType: "text/plain",
		})
		assert.ErrorIs(t, err, ErrUnsupportedContent)
	})
}
