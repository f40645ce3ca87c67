package fs

// MatchesGlobPattern exports the glob matcher for testing.
var MatchesGlobPattern = matchesGlobPattern
