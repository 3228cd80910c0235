// Package language normalises language codes used for transcription and
// translation settings and guesses the language of short text by script.
//
// Codes are canonicalised through golang.org/x/text/language so "eng",
// "en-US" and "English" all compare equal to "en".
package language
