package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizePicksFrequentSentencesInOrder(t *testing.T) {
	text := "काठमाडौं उपत्यका सुन्दर छ। आज पानी पर्‍यो। काठमाडौं नेपालको राजधानी हो र काठमाडौं ठूलो सहर हो।"
	got := NewFrequency().Summarize(text, 2)
	assert.Equal(t, "काठमाडौं उपत्यका सुन्दर छ। काठमाडौं नेपालको राजधानी हो र काठमाडौं ठूलो सहर हो।", got)
}

func TestSummarizeWithoutTerminators(t *testing.T) {
	assert.Equal(t, "no punctuation here", NewFrequency().Summarize("no   punctuation\nhere", 3))
}

func TestSummarizeClampsCount(t *testing.T) {
	text := "पहिलो वाक्य। दोस्रो वाक्य।"
	assert.Equal(t, text, NewFrequency().Summarize(text, 10))
}
