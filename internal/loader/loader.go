// Package loader reconstructs a course, its content and its assessments from
// an exported course directory.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pavelanni/aqs/internal/content"
	"github.com/pavelanni/aqs/internal/model"
)

var (
	// ErrCourseNotFound means the course directory does not exist.
	ErrCourseNotFound = errors.New("course directory not found")
	// ErrMetadataMissing means metadata.json is absent or unparseable.
	ErrMetadataMissing = errors.New("course metadata unavailable")
)

const (
	metadataFile    = "metadata.json"
	courseDirName   = "Course"
	legacyDirName   = "Content"
	coursePrefix    = "do_"
	subtitleExt     = ".vtt"
	pdfExt          = ".pdf"
	pdfSeparator    = "\n\n"
	transcriptJoint = " "
)

// Directory names that never count as modules.
var nonModuleDirs = map[string]bool{
	"Content":          true,
	"Final_Assessment": true,
	"Final Assessment": true,
	"Practice_Quizzes": true,
	"Practice_Quiz":    true,
	"Practice Quiz":    true,
	"Assessments":      true,
}

// Loader reads course exports below a data directory.
type Loader struct {
	dataDir string
	pdf     content.PDFExtractor
}

// New creates a Loader. A nil extractor disables PDF parsing.
func New(dataDir string, pdf content.PDFExtractor) *Loader {
	return &Loader{dataDir: dataDir, pdf: pdf}
}

// DataDir returns the root directory courses are read from.
func (l *Loader) DataDir() string { return l.dataDir }

// ListCourses returns the IDs of all course directories, sorted.
func (l *Loader) ListCourses() ([]string, error) {
	entries, err := os.ReadDir(l.dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), coursePrefix) {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// loadState collects non-fatal problems found while loading one course.
type loadState struct {
	warnings []string
	noPDF    bool
}

func (s *loadState) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Warn("course load", "warning", msg)
	s.warnings = append(s.warnings, msg)
}

// Load builds the CourseData for courseID. It fails only when the course
// directory or its metadata is unavailable; every other problem is recorded
// in CourseData.Warnings and loading continues with what is there.
func (l *Loader) Load(ctx context.Context, courseID string) (*model.CourseData, error) {
	coursePath := filepath.Join(l.dataDir, courseID)
	info, err := os.Stat(coursePath)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, courseID)
	}

	st := &loadState{}
	meta, err := loadMetadata(coursePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMetadataMissing, courseID, err)
	}

	modules := discoverModules(coursePath)
	cc := l.loadContent(ctx, st, coursePath, modules)
	assessments := l.loadAssessments(st, coursePath, modules, cc)

	return &model.CourseData{
		Metadata:    meta,
		Content:     cc,
		Assessments: assessments,
		Warnings:    st.warnings,
	}, nil
}

// Metadata reads only the metadata of courseID.
func (l *Loader) Metadata(courseID string) (model.CourseMetadata, error) {
	coursePath := filepath.Join(l.dataDir, courseID)
	if !isDir(coursePath) {
		return model.CourseMetadata{}, fmt.Errorf("%w: %s", ErrCourseNotFound, courseID)
	}
	meta, err := loadMetadata(coursePath)
	if err != nil {
		return meta, fmt.Errorf("%w: %s: %v", ErrMetadataMissing, courseID, err)
	}
	return meta, nil
}

func loadMetadata(coursePath string) (model.CourseMetadata, error) {
	var meta model.CourseMetadata
	data, err := os.ReadFile(filepath.Join(coursePath, metadataFile))
	if err != nil {
		return meta, fmt.Errorf("read %s: %w", metadataFile, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse %s: %w", metadataFile, err)
	}
	return meta, nil
}

// moduleDir is a module directory; key is its directory name.
type moduleDir struct {
	key  string
	path string
}

// discoverModules lists module directories under Course/ in name order,
// followed by any not yet seen under the legacy Course/Content/ folder.
func discoverModules(coursePath string) []moduleDir {
	var mods []moduleDir
	seen := make(map[string]bool)
	for _, dir := range []string{
		filepath.Join(coursePath, courseDirName),
		filepath.Join(coursePath, courseDirName, legacyDirName),
	} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || nonModuleDirs[e.Name()] || seen[e.Name()] {
				continue
			}
			seen[e.Name()] = true
			mods = append(mods, moduleDir{key: e.Name(), path: filepath.Join(dir, e.Name())})
		}
	}
	return mods
}

func displayName(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

func (l *Loader) loadContent(ctx context.Context, st *loadState, coursePath string, modules []moduleDir) model.CourseContent {
	cc := model.CourseContent{
		Modules: make(map[string]*model.ModuleContent, len(modules)),
	}

	rootSubs, _ := filepath.Glob(filepath.Join(coursePath, "*"+subtitleExt))
	slices.Sort(rootSubs)
	for _, path := range rootSubs {
		if text := readSubtitle(st, path); text != "" {
			cc.Transcripts = append(cc.Transcripts, text)
		}
	}

	for _, m := range modules {
		mc := &model.ModuleContent{ModuleName: displayName(m.key)}
		var parts []string
		for _, path := range findFiles(m.path, subtitleExt) {
			if text := readSubtitle(st, path); text != "" {
				parts = append(parts, text)
				cc.Transcripts = append(cc.Transcripts, text)
			}
		}
		mc.Transcript = strings.Join(parts, transcriptJoint)
		cc.ModuleNames = append(cc.ModuleNames, mc.ModuleName)
		cc.Modules[m.key] = mc
	}

	if len(cc.Transcripts) == 0 {
		st.warn("No transcripts found - reduced accuracy for content analysis")
	}

	parsed := 0
	for _, path := range findFiles(coursePath, pdfExt) {
		text := l.readPDF(ctx, st, path)
		if text == "" {
			continue
		}
		parsed++
		cc.PDFTexts = append(cc.PDFTexts, text)
		if mc := owningModule(cc.Modules, coursePath, path); mc != nil {
			mc.PDFText = strings.TrimSpace(mc.PDFText + pdfSeparator + text)
		}
	}
	if parsed > 0 {
		slog.Info("parsed PDF files", "course", filepath.Base(coursePath), "count", parsed)
	}
	return cc
}

// owningModule returns the module named by the first path component of
// path (relative to the course) that is a module key.
func owningModule(mods map[string]*model.ModuleContent, coursePath, path string) *model.ModuleContent {
	rel, err := filepath.Rel(coursePath, path)
	if err != nil {
		return nil
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if mc, ok := mods[part]; ok {
			return mc
		}
	}
	return nil
}

func readSubtitle(st *loadState, path string) string {
	text, err := content.ReadVTT(path)
	if err != nil {
		st.warn("Error reading VTT file %s: %v", filepath.Base(path), err)
		return ""
	}
	return text
}

func (l *Loader) readPDF(ctx context.Context, st *loadState, path string) string {
	if l.pdf == nil || st.noPDF {
		return ""
	}
	text, err := l.pdf.ExtractText(ctx, path)
	if errors.Is(err, content.ErrPDFToolMissing) {
		st.noPDF = true
		st.warn("PDF parsing not available (pdftotext not installed) - skipping PDF content")
		return ""
	}
	if err != nil {
		st.warn("Error parsing PDF file %s: %v", filepath.Base(path), err)
		return ""
	}
	return text
}

// findFiles walks root in lexical order and returns files with the given
// extension (case-insensitive).
func findFiles(root, ext string) []string {
	var out []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ext) {
			out = append(out, path)
		}
		return nil
	})
	return out
}
