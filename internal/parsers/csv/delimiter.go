package csv

import (
	"strings"
)

var candidateDelimiters = []CsvDelimiter{DelimiterComma, DelimiterSemicolon, DelimiterTab, DelimiterPipe}

// DetectDelimiter detects the CSV delimiter by analyzing the first few lines.
// The delimiter whose per-line count is highest and most consistent wins.
func DetectDelimiter(content string) CsvDelimiter {
	sampleLines := make([]string, 0, 5)
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			sampleLines = append(sampleLines, trimmed)
			if len(sampleLines) >= 5 {
				break
			}
		}
	}

	if len(sampleLines) == 0 {
		return DelimiterComma
	}

	bestDelimiter := DelimiterComma
	maxConsistency := 0.0

	for _, delim := range candidateDelimiters {
		counts := make([]int, 0, len(sampleLines))
		sum := 0
		for _, line := range sampleLines {
			c := countOutsideQuotes(line, rune(delim[0]))
			counts = append(counts, c)
			sum += c
		}

		avgCount := float64(sum) / float64(len(counts))
		if avgCount == 0 {
			continue
		}

		variance := 0.0
		for _, c := range counts {
			diff := float64(c) - avgCount
			variance += diff * diff
		}
		variance /= float64(len(counts))

		consistency := avgCount / (1.0 + variance)
		if consistency > maxConsistency {
			maxConsistency = consistency
			bestDelimiter = delim
		}
	}

	return bestDelimiter
}

func countOutsideQuotes(line string, delim rune) int {
	count := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			count++
		}
	}
	return count
}
