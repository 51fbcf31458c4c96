package i18n

import "testing"

func TestPickName(t *testing.T) {
	tests := []struct {
		lang       Language
		cn, en, hk string
		want       string
	}{
		{LangEN, "腾讯", "Tencent", "騰訊", "Tencent"},
		{LangZHCN, "腾讯", "Tencent", "騰訊", "腾讯"},
		{LangZHHK, "腾讯", "Tencent", "騰訊", "騰訊"},
		{LangZHHK, "腾讯", "Tencent", "", "Tencent"},
		{LangEN, "腾讯", "", "", "腾讯"},
	}
	for _, tt := range tests {
		if got := tt.lang.PickName(tt.cn, tt.en, tt.hk); got != tt.want {
			t.Errorf("%s: got %q want %q", tt.lang, got, tt.want)
		}
	}
}

func TestParseLanguage(t *testing.T) {
	if l, ok := ParseLanguage("ZH-hk"); !ok || l != LangZHHK {
		t.Fatalf("got %s %v", l, ok)
	}
	if l, ok := ParseLanguage("fr"); ok || l != LangEN {
		t.Fatalf("got %s %v", l, ok)
	}
}

func TestSetLanguage(t *testing.T) {
	defer SetLanguage(LangEN)
	SetLanguage(LangZHCN)
	if GetLanguage() != LangZHCN {
		t.Fatal("language not switched")
	}
	if Get("ShuttingDown") != messagesZHCN.ShuttingDown {
		t.Fatalf("unexpected message %q", Get("ShuttingDown"))
	}
	if Get("NoSuchKey") != "NoSuchKey" {
		t.Fatal("unknown key should echo")
	}
}
