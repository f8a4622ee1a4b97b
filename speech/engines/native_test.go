package engines

import (
	"reflect"
	"strings"
	"testing"

	"github.com/IsHPDuwu/classvoice/speech"
)

func TestParseSayVoices(t *testing.T) {
	output := `Alex                en_US    # Most people recognize me by my voice.
Mei-Jia             zh_TW    # 你好，我叫美佳。
Ting-Ting           zh_CN    # 你好，我叫Ting-Ting。

`

	got := parseSayVoices(output)
	want := []speech.Voice{
		{ID: "Alex", Name: "Alex", Locale: "en-US"},
		{ID: "Mei-Jia", Name: "Mei-Jia", Locale: "zh-TW"},
		{ID: "Ting-Ting", Name: "Ting-Ting", Locale: "zh-CN"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseSayVoices() = %+v, want %+v", got, want)
	}
}

func TestParseSayVoicesMultiWordName(t *testing.T) {
	got := parseSayVoices("Bad News           en_US    # comment\n")
	want := []speech.Voice{{ID: "Bad News", Name: "Bad News", Locale: "en-US"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseSayVoices() = %+v, want %+v", got, want)
	}
}

func TestWindowsSpeechScript(t *testing.T) {
	script := windowsSpeechScript("Microsoft Huihui")

	if !strings.Contains(script, "SelectVoice('Microsoft Huihui')") {
		t.Errorf("script should select the voice:\n%s", script)
	}
	if !strings.Contains(script, "SetOutputToWaveFile($env:CLASSVOICE_OUT)") {
		t.Errorf("script should write to the env-provided path:\n%s", script)
	}

	// Single quotes in voice names must not break out of the literal.
	quoted := windowsSpeechScript("O'Brien")
	if !strings.Contains(quoted, "SelectVoice('O''Brien')") {
		t.Errorf("quote not escaped:\n%s", quoted)
	}

	if strings.Contains(windowsSpeechScript(""), "SelectVoice") {
		t.Error("empty voice should skip SelectVoice")
	}
}
