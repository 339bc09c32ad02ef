// Package pathfix normalizes uploaded coverage paths into canonical
// repo-relative paths. It layers user-declared rewrite rules and
// include/exclude filters around the table-of-contents resolution from
// pkg/pathmap, and falls back to a fixed table of well-known CI noise
// prefixes when no table of contents was uploaded.
package pathfix

import (
	"regexp"
	"strings"
)

// knownNoisePatterns are path prefixes injected by CI systems, package
// managers and build tools. They are stripped when a report arrives without a
// table of contents, so that the remainder has a chance of matching the
// repository layout.
var knownNoisePatterns = []string{
	`((home|Users)/travis/build/[^\/\n]+/[^\/\n]+/)`,
	`((home|Users)/jenkins/jobs/[^\/\n]+/workspace/)`,
	`(Users/distiller/[^\/\n]+/)`,
	`(home/[^\/\n]+/src/([^\/\n]+/){3})`,
	`((home|Users)/[^\/\n]+/workspace/[^\/\n]+/[^\/\n]+/)`,
	`(.*/jenkins/workspace/[^\/\n]+/)`,
	`((.+/src/)?github\.com/[^\/\n]+/[^\/\n]+/)`,
	`(\w:/Repos/[^\/\n]+/[^\/\n]+/)`,
	`([\w:/]+projects/[^\/\n]+/)`,
	`(\w:/_build/GitHub/[^\/\n]+/)`,
	`(build/lib\.[^\/\n]+/)`,
	`(home/circleci/code/)`,
	`(home/circleci/repo/)`,
	`(vendor/src/.*)`,
	`(pipeline/source/)`,
	`(var/snap-ci/repo/)`,
	`(home/ubuntu/[^\/\n]+/)`,
	`(.*/site-packages/[^\/\n]+\.egg/)`,
	`(.*/site-packages/)`,
	`(usr/local/lib/[^\/\n]+/dist-packages/)`,
	`(.*/slather/spec/fixtures/[^\n]*)`,
	`(.*/target/generated-sources/[^\n]*)`,
	`(.*/\.phpenv/.*)`,
	`(usr/include/.*)`,
	`(node_modules/.*)`,
	`(bower_components/.*)`,
	`(.*/lib/clang/.*)`,
	`(.*[\<\>].*)`,
	`(\w\:\/)`,
	`(opt/.*/dist-packages/.*)`,
	`(.*/iPhoneSimulator.platform/Developer/SDKs/.*)`,
	`(Applications/Xcode\.app/Contents/Developer/Toolchains/.*)`,
	`((.*/)?\.?v?(irtual)?\.?envs?(-[^\/\n]+)?/.*/[^\/\n]+\.py$)`,
	`(Users/[^\/\n]+/Projects/.*/Pods/.*)`,
	`(Users/[^\/\n]+/Projects/[^\/\n]+/)`,
	`(home/[^\/\n]+/[^\/\n]+/[^\/\n]+/)`,
}

var knownNoiseRe = regexp.MustCompile(
	`(?im)^(\.*\/)*(` + strings.Join(knownNoisePatterns, "|") + `)?`,
)

// StripKnownNoise removes well-known CI and toolchain prefixes from a path.
// Used only when no table of contents is available to resolve against.
func StripKnownNoise(path string) string {
	return knownNoiseRe.ReplaceAllString(path, "")
}

// CleanTOC splits a raw newline-delimited table of contents into individual
// cleaned paths: escaped spaces are unescaped, backslashes become slashes,
// leading "./" segments are dropped, and delombok-generated entries are
// removed entirely.
func CleanTOC(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	lines := strings.Split(raw, "\n")
	toc := make([]string, 0, len(lines))

	for _, line := range lines {
		entry := strings.TrimSpace(line)
		entry = strings.ReplaceAll(entry, `\ `, " ")
		entry = strings.ReplaceAll(entry, `\`, "/")
		entry = strings.TrimPrefix(entry, "./")

		if entry == "" || strings.Contains(entry, "/target/delombok/") {
			continue
		}

		toc = append(toc, entry)
	}

	return toc
}
