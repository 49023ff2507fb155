// Command twitlysis scrapes recent posts for a search term, scores their
// relevance and serves the results.
package main

func main() {
	Execute()
}
