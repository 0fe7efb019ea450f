package devserver

import "testing"

func TestCheckCrisisDetectsKeywords(t *testing.T) {
	isCrisis, msg := checkCrisis("Some days I just want to end my life")
	if !isCrisis {
		t.Fatal("expected crisis detection")
	}
	if msg != helplineMessage {
		t.Fatalf("expected the fixed helpline message, got %q", msg)
	}
}

func TestCheckCrisisIgnoresOrdinaryText(t *testing.T) {
	if isCrisis, _ := checkCrisis("I had a pretty good day at work"); isCrisis {
		t.Fatal("unexpected crisis detection")
	}
}

func TestAnalyzeEmotionClassifiesText(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"I feel anxious about my exams", "fear"},
		{"I'm so happy today, everything is wonderful", "joy"},
		{"I'm furious and fed up with all of this", "anger"},
		{"I've been crying, I feel so lonely and sad", "sadness"},
	}

	for _, tc := range cases {
		label, confidence := analyzeEmotion(tc.text)
		if label != tc.want {
			t.Fatalf("analyzeEmotion(%q) = %q, want %q", tc.text, label, tc.want)
		}
		if confidence <= 0 || confidence > 1 {
			t.Fatalf("confidence out of range for %q: %v", tc.text, confidence)
		}
	}
}

func TestAnalyzeEmotionNeutralFallback(t *testing.T) {
	label, confidence := analyzeEmotion("the meeting is at three")
	if label != "neutral" || confidence != 0 {
		t.Fatalf("expected neutral/0, got %q/%v", label, confidence)
	}
}

func TestRecommendForCoversNegativeEmotions(t *testing.T) {
	for _, emotion := range []string{"sadness", "fear", "anger"} {
		if recommendFor(emotion) == "" {
			t.Fatalf("expected a coping strategy for %q", emotion)
		}
	}
	if recommendFor("joy") != "" {
		t.Fatal("joy should not produce a recommendation")
	}
	if recommendFor("neutral") != "" {
		t.Fatal("neutral should not produce a recommendation")
	}
}
