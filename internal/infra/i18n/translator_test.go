//go:build !integration

package i18n

import (
	"testing"

	"conductor-chat/internal/domain/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: Olá\nwelcome_user: Olá %s"))
	require.NoError(t, err)

	t.Run("should translate a simple key", func(t *testing.T) {
		assert.Equal(t, "Olá", translator.T("greeting"))
	})

	t.Run("should return key if not found", func(t *testing.T) {
		assert.Equal(t, "nonexistent_key", translator.T("nonexistent_key"))
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		assert.Equal(t, "Olá Ana", translator.T("welcome_user", "Ana"))
	})
}

func TestEmbeddedLocales(t *testing.T) {
	keys := []string{
		exchange.KeyProgressStarting, exchange.KeyProgressAnalyzing, exchange.KeyProgressTool,
		exchange.KeyToolFinished, exchange.KeyErrorPrefix, exchange.KeyErrorInterrupted,
		exchange.KeyErrorConnection, exchange.KeyErrorEmptyInput, exchange.KeySyncDefault,
		exchange.KeyStreamCompleted,
	}
	for _, lang := range []string{"pt", "en"} {
		tr, err := NewTranslator(LocalesFS, lang)
		require.NoError(t, err, lang)
		for _, k := range keys {
			assert.NotEqual(t, k, tr.T(k), "%s missing %s", lang, k)
		}
	}

	pt := MustDefault("pt")
	assert.Equal(t, "🔧 Usando ferramenta: search...", pt.T(exchange.KeyProgressTool, "search"))
	assert.Equal(t, "✅ Comando executado com sucesso!", pt.T(exchange.KeySyncDefault))
}

func TestMustDefault_UnknownLangFallsBackToPortuguese(t *testing.T) {
	tr := MustDefault("xx")
	assert.Equal(t, "pt", tr.Lang())
}
