// Package repository indexes markdown archives on disk for browsing and search.
package repository

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/blockedby/tg-archive/internal/archive"
)

// errors
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidPath = errors.New("invalid path")
)

// DefaultSearchLimit applies when a search passes a non-positive limit.
const DefaultSearchLimit = 50

const (
	timeLayout       = "2006-01-02 15:04:05"
	dayLayout        = "2006-01-02"
	maxContentRunes  = 300
	contentHeader    = "### Content\n\n"
	truncationSuffix = "..."
)

var (
	messageHeaderRe = regexp.MustCompile(`(?m)^## Message \d+`)
	messageIDRe     = regexp.MustCompile(`\*\*Message ID:\*\* (\d+)`)
	dateRe          = regexp.MustCompile(`\*\*Date:\*\* ([^\n]+)`)
	senderRe        = regexp.MustCompile(`\*\*Sender:\*\* ([^\n]+)`)
	dateRangeRe     = regexp.MustCompile(`\*\*Date Range:\*\* (\d{4}-\d{2}-\d{2}) to (\d{4}-\d{2}-\d{2})`)
)

// ChannelSummary describes one archived channel directory.
type ChannelSummary struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	ArchiveType  string `json:"archive_type"`
	FileCount    int    `json:"file_count"`
	MessageCount int    `json:"message_count"`
	MediaCount   int    `json:"media_count"`
	LatestUpdate string `json:"latest_update"`
	LatestFile   string `json:"latest_file"`

	latest time.Time
}

// FileInfo describes one archive file.
type FileInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	MessageCount int    `json:"message_count"`
	DateRange    string `json:"date_range"`
	Modified     string `json:"modified"`
	ArchiveType  string `json:"archive_type"`

	modTime time.Time
}

// SearchResult is one matching message section.
type SearchResult struct {
	Channel     string `json:"channel"`
	MessageID   string `json:"message_id"`
	Date        string `json:"date"`
	Sender      string `json:"sender"`
	Content     string `json:"content"` // escaped, truncated, with <mark> highlights
	FullContent string `json:"full_content"`
	HasMedia    bool   `json:"has_media"`
	MediaType   string `json:"media_type"`
	File        string `json:"file"`
}

// Stats holds totals over every archive root.
type Stats struct {
	TotalChannels int `json:"total_channels"`
	TotalFiles    int `json:"total_files"`
	TotalMessages int `json:"total_messages"`
	TotalMedia    int `json:"total_media"`
}

// ArchiveIndex reads archives from a list of root directories, such as the
// batch output directory and the live archive directory. Roots that do not
// exist are skipped.
type ArchiveIndex struct {
	roots []string
}

// NewArchiveIndex creates an index over roots, in lookup order.
func NewArchiveIndex(roots ...string) *ArchiveIndex {
	return &ArchiveIndex{roots: lo.Uniq(lo.Compact(roots))}
}

// Roots returns the configured archive roots.
func (x *ArchiveIndex) Roots() []string {
	return x.roots
}

// channelDir is a channel directory found under a root
type channelDir struct {
	name string
	path string
	root string
}

func (d channelDir) archiveType() string {
	return filepath.Base(d.root)
}

// channelDirs lists channel directories of every root. When name is set only
// directories with that name are returned.
func (x *ArchiveIndex) channelDirs(name string) []channelDir {
	var dirs []channelDir
	for _, root := range x.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || e.Name() == archive.MediaDirName {
				continue
			}
			if name != "" && e.Name() != name {
				continue
			}
			dirs = append(dirs, channelDir{name: e.Name(), path: filepath.Join(root, e.Name()), root: root})
		}
	}
	return dirs
}

// markdownFiles lists *.md files of dir by name.
func markdownFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	md := lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return !e.IsDir() && filepath.Ext(e.Name()) == ".md"
	})
	return lo.Map(md, func(e os.DirEntry, _ int) string {
		return filepath.Join(dir, e.Name())
	})
}

func countMessages(content string) int {
	return len(messageHeaderRe.FindAllStringIndex(content, -1))
}

func countMedia(channelPath string) int {
	entries, err := os.ReadDir(filepath.Join(channelPath, archive.MediaDirName))
	if err != nil {
		return 0
	}
	return len(entries)
}

// Channels lists channel directories holding at least one archive file,
// most recently updated first.
func (x *ArchiveIndex) Channels() []ChannelSummary {
	var channels []ChannelSummary

	for _, dir := range x.channelDirs("") {
		files := markdownFiles(dir.path)
		if len(files) == 0 {
			continue
		}

		summary := ChannelSummary{
			Name:        dir.name,
			Path:        dir.path,
			ArchiveType: dir.archiveType(),
			FileCount:   len(files),
			MediaCount:  countMedia(dir.path),
		}

		for _, f := range files {
			info, err := os.Stat(f)
			if err != nil {
				continue
			}
			if info.ModTime().After(summary.latest) {
				summary.latest = info.ModTime()
				summary.LatestFile = filepath.Base(f)
			}
			if data, err := os.ReadFile(f); err == nil {
				summary.MessageCount += countMessages(string(data))
			}
		}
		summary.LatestUpdate = summary.latest.Format(timeLayout)

		channels = append(channels, summary)
	}

	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].latest.After(channels[j].latest)
	})
	return channels
}

// Files lists the archive files of a channel across every root, newest first.
func (x *ArchiveIndex) Files(channel string) ([]FileInfo, error) {
	if !validName(channel) {
		return nil, ErrInvalidPath
	}

	var files []FileInfo
	for _, dir := range x.channelDirs(channel) {
		for _, f := range markdownFiles(dir.path) {
			info, err := os.Stat(f)
			if err != nil {
				continue
			}
			data, err := os.ReadFile(f)
			if err != nil {
				continue
			}
			content := string(data)

			dateRange := info.ModTime().Format(dayLayout)
			if m := dateRangeRe.FindStringSubmatch(content); m != nil {
				dateRange = m[1] + " to " + m[2]
			}

			files = append(files, FileInfo{
				Name:         filepath.Base(f),
				Path:         f,
				Size:         info.Size(),
				MessageCount: countMessages(content),
				DateRange:    dateRange,
				Modified:     info.ModTime().Format(timeLayout),
				ArchiveType:  dir.archiveType(),
				modTime:      info.ModTime(),
			})
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	return files, nil
}

// ReadFile returns the content of an archive file, looking through the roots
// in order.
func (x *ArchiveIndex) ReadFile(channel, file string) (string, error) {
	if !validName(channel) || !validName(file) || filepath.Ext(file) != ".md" {
		return "", ErrInvalidPath
	}

	for _, root := range x.roots {
		data, err := os.ReadFile(filepath.Join(root, channel, file))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read archive file: %w", err)
		}
	}
	return "", ErrNotFound
}

// MediaPath returns the on-disk path of a stored attachment.
func (x *ArchiveIndex) MediaPath(channel, file string) (string, error) {
	if !validName(channel) || !validName(file) {
		return "", ErrInvalidPath
	}

	for _, root := range x.roots {
		p := filepath.Join(root, channel, archive.MediaDirName, file)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// Stats returns totals over every channel directory, including directories
// without archive files.
func (x *ArchiveIndex) Stats() Stats {
	dirs := x.channelDirs("")

	stats := Stats{TotalChannels: len(dirs)}
	for _, dir := range dirs {
		files := markdownFiles(dir.path)
		stats.TotalFiles += len(files)
		stats.TotalMessages += lo.SumBy(files, func(f string) int {
			data, err := os.ReadFile(f)
			if err != nil {
				return 0
			}
			return countMessages(string(data))
		})
		stats.TotalMedia += countMedia(dir.path)
	}
	return stats
}

// Search returns message sections containing query, case-insensitively.
// When channel is set only that channel is searched. At most limit results
// are returned; limit <= 0 means DefaultSearchLimit.
func (x *ArchiveIndex) Search(query, channel string, limit int) []SearchResult {
	results := []SearchResult{}
	if strings.TrimSpace(query) == "" {
		return results
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if channel != "" && !validName(channel) {
		return results
	}

	queryLower := strings.ToLower(query)
	highlight := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(query))

	for _, dir := range x.channelDirs(channel) {
		for _, f := range markdownFiles(dir.path) {
			data, err := os.ReadFile(f)
			if err != nil {
				continue
			}

			for i, section := range splitSections(string(data)) {
				if !strings.Contains(strings.ToLower(section), queryLower) {
					continue
				}

				results = append(results, parseSection(section, i, dir.name, filepath.Base(f), highlight))
				if len(results) >= limit {
					return results
				}
			}
		}
	}
	return results
}

// splitSections returns the text following each message header.
func splitSections(content string) []string {
	parts := messageHeaderRe.Split(content, -1)
	if len(parts) <= 1 {
		return nil
	}
	return parts[1:]
}

func parseSection(section string, index int, channel, file string, highlight *regexp.Regexp) SearchResult {
	res := SearchResult{
		Channel:   channel,
		MessageID: fmt.Sprintf("msg_%d", index),
		Date:      "Unknown",
		Sender:    "Unknown",
		File:      file,
	}

	if m := messageIDRe.FindStringSubmatch(section); m != nil {
		res.MessageID = m[1]
	}
	if m := dateRe.FindStringSubmatch(section); m != nil {
		res.Date = m[1]
	}
	if m := senderRe.FindStringSubmatch(section); m != nil {
		res.Sender = m[1]
	}

	res.FullContent = extractContent(section)
	body, cut := truncate(res.FullContent)
	res.Content = highlightEscaped(body, highlight)
	if cut {
		res.Content += truncationSuffix
	}

	res.HasMedia = strings.Contains(section, "**Media:**")
	if res.HasMedia {
		res.MediaType = mediaType(section)
	}
	return res
}

// extractContent returns the text under "### Content" up to the next bold
// field or section rule.
func extractContent(section string) string {
	_, rest, ok := strings.Cut(section, contentHeader)
	if !ok {
		return ""
	}
	for _, stop := range []string{"\n\n**", "\n\n---"} {
		if i := strings.Index(rest, stop); i >= 0 {
			rest = rest[:i]
		}
	}
	return strings.TrimSpace(rest)
}

// truncate cuts s to maxContentRunes and reports whether it did.
func truncate(s string) (string, bool) {
	if utf8.RuneCountInString(s) <= maxContentRunes {
		return s, false
	}
	return string([]rune(s)[:maxContentRunes]), true
}

// highlightEscaped HTML-escapes s and wraps every match of re in <mark>.
// Matching runs on the raw text so entities are never split.
func highlightEscaped(s string, re *regexp.Regexp) string {
	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(s, -1) {
		b.WriteString(html.EscapeString(s[last:loc[0]]))
		b.WriteString("<mark>")
		b.WriteString(html.EscapeString(s[loc[0]:loc[1]]))
		b.WriteString("</mark>")
		last = loc[1]
	}
	b.WriteString(html.EscapeString(s[last:]))
	return b.String()
}

func mediaType(section string) string {
	switch {
	case strings.Contains(section, "📷 Photo"), strings.Contains(section, "📷 Image Document"):
		return "Photo"
	case strings.Contains(section, "📎 Document"):
		return "Document"
	case strings.Contains(section, "🎬 Video"):
		return "Video"
	}
	return ""
}

// validName rejects empty names and anything that could leave the directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
