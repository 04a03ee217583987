package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromAcceptLanguage(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", English},
		{"english", "en-US,en;q=0.9", English},
		{"japanese", "ja-JP", Japanese},
		{"chinese region tag", "zh-TW,zh;q=0.8", Chinese},
		{"q ranking", "en;q=0.5,ja;q=0.9", Japanese},
		{"unsupported only", "fr-FR,de;q=0.8", English},
		{"unsupported first", "fr,zh-CN;q=0.7", Chinese},
		{"zero weight ignored", "ja;q=0,en;q=0.1", English},
		{"tie keeps first", "ja;q=0.8,zh;q=0.8", Japanese},
		{"wildcard", "*", English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromAcceptLanguage(tt.header))
		})
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "Japanese", Name(Japanese))
	assert.Equal(t, "English", Name("xx"))
}
