// Package textgen produces the synthetic text that fills prompts when no real
// data is supplied: random alphanumeric strings, placeholder system prompts and
// generated questions.
package textgen

import (
	"fmt"
	"math/rand"
	"strings"
)

const alphanum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// QuestionNoiseLen is the length of the random suffix appended to every
// generated question so that prompts never hit a prefix cache by accident.
const QuestionNoiseLen = 200

// RandomString returns n random alphanumeric characters drawn from r.
func RandomString(r *rand.Rand, n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanum[r.Intn(len(alphanum))]
	}
	return string(b)
}

// Filler repeats "hi" n times, space separated.
func Filler(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("hi ", n), " ")
}

// SystemPrompt builds the placeholder system prompt used when a user has no app
// profile attached.
func SystemPrompt(userID, systemLen, userInfoLen int) string {
	return fmt.Sprintf("Hi, here's some system prompt: %s.", Filler(systemLen)) +
		fmt.Sprintf("For user %d, ", userID) +
		fmt.Sprintf("here are some other context: %s.", Filler(userInfoLen))
}

// Question builds question number n with a random suffix.
func Question(r *rand.Rand, n int) string {
	return fmt.Sprintf("Here's question #%d: can you tell me ", n) +
		"a new long story with a happy ending? " +
		"Here's a random string: " + RandomString(r, QuestionNoiseLen)
}

// Warmup builds the warmup prompt for pseudo user i.
func Warmup(i int) string {
	return fmt.Sprintf("WARMUP: Hi, I'm user %d. Here are some text: %s.", i, strings.Repeat("hi ", 100))
}
