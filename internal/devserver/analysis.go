package devserver

import (
	"math/rand"
	"strings"
)

// Keyword heuristics standing in for the production emotion classifier.
// Labels match the classifier's taxonomy so the client sees the same wire
// values either way.

const helplineMessage = "I'm really detecting some serious distress in your words. " +
	"Please know that you are not alone. If you are in immediate danger, " +
	"please call a local emergency number or a suicide prevention hotline immediately. " +
	"Your safety is the most important thing right now."

const crisisRecommendation = "Please seek professional help immediately."

var crisisKeywords = []string{
	"suicide", "kill myself", "end my life", "want to die",
	"hurt myself", "cutting myself", "no reason to live",
	"better off dead", "feel like dying",
}

var emotionKeywords = map[string][]string{
	"sadness": {
		"sad", "unhappy", "depressed", "down", "miserable", "lonely", "cry",
		"crying", "hopeless", "empty", "grief", "heartbroken", "upset",
	},
	"joy": {
		"happy", "great", "wonderful", "excited", "glad", "amazing", "awesome",
		"fantastic", "thrilled", "delighted", "proud", "cheerful",
	},
	"love": {
		"love", "loved", "caring", "affection", "grateful", "thankful",
		"appreciate", "cherish",
	},
	"anger": {
		"angry", "furious", "mad", "annoyed", "frustrated", "irritated",
		"rage", "hate", "fed up", "pissed",
	},
	"fear": {
		"afraid", "scared", "anxious", "anxiety", "worried", "nervous",
		"panic", "terrified", "overwhelmed", "stressed", "dread",
	},
	"surprise": {
		"surprised", "shocked", "unexpected", "sudden", "unbelievable",
		"astonished", "stunned",
	},
}

var copingStrategies = map[string][]string{
	"sadness": {
		"It's okay to feel sad. Maybe try writing down your thoughts in a journal?",
		"Have you considered taking a short walk outside? Sometimes fresh air helps.",
		"Listen to some comforting music or a favorite song.",
		"Reach out to a close friend just to say hi.",
	},
	"fear": {
		"Try a deep breathing exercise: Inhale for 4 seconds, hold for 7, exhale for 8.",
		"Focus on the present moment. Name 5 things you can see around you.",
		"Grounding technique: Hold an ice cube or wash your hands with cold water.",
		"Write down what is worrying you, then cross out the things you cannot control.",
	},
	"anger": {
		"Take a step back and count to 10 slowly.",
		"Physical movement can help release tension. Maybe do some stretching?",
		"Write a letter to the source of your anger, but don't send it.",
		"Listen to high-energy music to let the emotions out safely.",
	},
}

// checkCrisis scans for crisis keywords. When one is found the fixed
// helpline message must be the reply, bypassing normal generation.
func checkCrisis(text string) (bool, string) {
	textLower := strings.ToLower(text)
	for _, keyword := range crisisKeywords {
		if strings.Contains(textLower, keyword) {
			return true, helplineMessage
		}
	}
	return false, ""
}

// analyzeEmotion scores the text against each keyword bucket and returns
// the winning label with a confidence in [0, 1]. No hits means neutral
// with zero confidence, mirroring the classifier's empty-input behavior.
func analyzeEmotion(text string) (string, float64) {
	textLower := strings.ToLower(text)

	best := ""
	bestHits := 0
	for label, keywords := range emotionKeywords {
		hits := 0
		for _, keyword := range keywords {
			if strings.Contains(textLower, keyword) {
				hits++
			}
		}
		if hits > bestHits || (hits == bestHits && hits > 0 && label < best) {
			best = label
			bestHits = hits
		}
	}

	if bestHits == 0 {
		return "neutral", 0.0
	}

	confidence := 0.6 + 0.1*float64(bestHits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return best, confidence
}

// recommendFor returns a coping strategy for emotions that warrant one,
// or "" otherwise.
func recommendFor(emotion string) string {
	strategies, ok := copingStrategies[emotion]
	if !ok {
		return ""
	}
	return strategies[rand.Intn(len(strategies))]
}
