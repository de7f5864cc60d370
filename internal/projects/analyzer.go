package projects

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// sourceExtensions are the file types the analyzer inspects.
var sourceExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true,
	".tsx": true, ".rs": true, ".java": true, ".rb": true, ".php": true,
	".ex": true, ".exs": true,
}

// riskMarkers are line substrings counted as potential security issues.
// This is a lightweight screen, not a rule engine; deployments needing real
// static analysis substitute an external analyzer for this collaborator.
var riskMarkers = []string{
	"password =", "password=\"", "api_key", "apikey", "secret_key",
	"BEGIN RSA PRIVATE KEY", "eval(", "exec(", "os.system(",
	"subprocess.call(", "dangerouslySetInnerHTML",
}

// qualityMarkers are line substrings counted as quality issues.
var qualityMarkers = []string{"TODO", "FIXME", "XXX", "HACK"}

// maxAnalyzedFiles caps the per-project file walk.
const maxAnalyzedFiles = 500

// Analyzer produces per-project analysis results from a bounded source walk.
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer creates the built-in heuristic analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze walks the project tree counting security and quality markers, test
// files, and documentation, and derives an overall score. The caller only
// aggregates the returned counts.
func (a *Analyzer) Analyze(ctx context.Context, projectPath, projectID string) (*AnalysisResult, error) {
	result := &AnalysisResult{
		ProjectID:   projectID,
		ProjectPath: projectPath,
	}

	err := filepath.WalkDir(projectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == projectPath {
				return err
			}
			return fs.SkipDir
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if result.FilesScanned >= maxAnalyzedFiles {
			return fs.SkipAll
		}

		name := d.Name()
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "readme") || strings.HasSuffix(lower, ".md") {
			result.DocsFound++
			return nil
		}

		ext := filepath.Ext(name)
		if !sourceExtensions[ext] {
			return nil
		}
		result.FilesScanned++

		if isTestFile(lower) {
			result.TestsFound++
		}

		sec, qual := scanFileMarkers(path)
		result.SecurityIssues += sec
		result.QualityIssues += qual
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.OverallScore = score(result)

	a.logger.Debug("project analyzed",
		zap.String("project_id", projectID),
		zap.Int("files", result.FilesScanned),
		zap.Int("security_issues", result.SecurityIssues),
		zap.Int("quality_issues", result.QualityIssues),
		zap.Float64("score", result.OverallScore),
	)
	return result, nil
}

func isTestFile(lower string) bool {
	return strings.HasSuffix(lower, "_test.go") ||
		strings.HasPrefix(lower, "test_") ||
		strings.Contains(lower, ".test.") ||
		strings.Contains(lower, ".spec.")
}

// scanFileMarkers counts risk and quality markers in a single file.
// Unreadable files contribute nothing.
func scanFileMarkers(path string) (security, quality int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		for _, m := range riskMarkers {
			if strings.Contains(line, m) {
				security++
				break
			}
		}
		for _, m := range qualityMarkers {
			if strings.Contains(line, m) {
				quality++
				break
			}
		}
	}
	return security, quality
}

// score derives a 0-100 health score: start from 100, subtract per issue,
// credit test and doc presence.
func score(r *AnalysisResult) float64 {
	s := 100.0
	s -= float64(r.SecurityIssues) * 5
	s -= float64(r.QualityIssues) * 0.5
	if r.TestsFound == 0 {
		s -= 10
	}
	if r.DocsFound == 0 {
		s -= 5
	}
	if s < 0 {
		s = 0
	}
	return s
}
