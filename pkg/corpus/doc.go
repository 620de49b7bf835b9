/*
Package corpus prepares raw text for n-gram training and formats generated
tokens for display.

A Normalizer removes markup and punctuation, lower-cases the text and keeps
Portuguese pronominal hyphenation ("disse-lhe") intact. A Tokenizer runs
a Normalizer over a reader or a list of files and yields word tokens. The
remaining helpers compute word statistics and lay generated text out in
lines.
*/
package corpus
