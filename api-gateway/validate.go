// api-gateway/validate.go
package main

import "regexp"

// youtubeURLPatterns covers the recognized YouTube URL shapes: watch pages
// (www, mobile, music), short links, embeds and shorts
var youtubeURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com/watch\?v=)[\w-]+`),
	regexp.MustCompile(`^(https?://)?(www\.)?(youtu\.be/)[\w-]+`),
	regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com/embed/)[\w-]+`),
	regexp.MustCompile(`^(https?://)?(m\.)?(youtube\.com/watch\?v=)[\w-]+`),
	regexp.MustCompile(`^(https?://)?(music\.)?(youtube\.com/watch\?v=)[\w-]+`),
	regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com/shorts/)[\w-]+`),
}

// isValidYouTubeURL reports whether url matches a recognized shape
func isValidYouTubeURL(url string) bool {
	for _, p := range youtubeURLPatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}
