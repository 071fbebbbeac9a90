package blocklist

import "testing"

func TestMatchesTLDPattern(t *testing.T) {
	if !Matches("*.ru", "https://news.example.ru/page", "news.example.ru", "https://news.example.ru/page") {
		t.Fatalf("expected *.ru to match news.example.ru")
	}
	if Matches("*.ru", "https://example.com/page", "example.com", "https://example.com/page") {
		t.Fatalf("did not expect *.ru to match example.com")
	}
}

func TestMatchesKeywordPattern(t *testing.T) {
	if !Matches("*porn*", "https://bad.test/porn/free", "bad.test", "https://bad.test/porn/free") {
		t.Fatalf("expected *porn* to match a URL containing porn")
	}
	if Matches("*porn*", "https://good.test/articles", "good.test", "https://good.test/articles") {
		t.Fatalf("did not expect *porn* to match a clean URL")
	}
}

func TestMatchesExactHost(t *testing.T) {
	if !Matches("spam.example.com", "https://spam.example.com/x", "spam.example.com", "https://spam.example.com/x") {
		t.Fatalf("expected exact host match")
	}
	if Matches("spam.example.com", "https://notspam.example.com/x", "notspam.example.com", "https://notspam.example.com/x") {
		t.Fatalf("did not expect a different host to match")
	}
}
