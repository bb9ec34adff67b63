package recipe

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Statements every install section starts with: wipe the build root, recreate it
// and copy the unpacked source archive into it.
const (
	ClearBuildRootStatement  = "rm -rf %{buildroot}"
	CreateBuildRootStatement = "mkdir -p %{buildroot}"
	CopySourcesStatement     = "cp -rp * %{buildroot}"
)

var (
	// ErrEmptyStatement is returned when an install statement is blank.
	ErrEmptyStatement = errors.New("install statement is empty")
	// ErrStatementSyntax is returned when an install statement is not valid shell.
	ErrStatementSyntax = errors.New("install statement has invalid shell syntax")
)

// Bootstrap returns the fixed statements preceding user statements.
func Bootstrap() []string {
	return []string{ClearBuildRootStatement, CreateBuildRootStatement, CopySourcesStatement}
}

// InstallScript collects user install statements. The statements are
// rendered into the recipe and run by rpmbuild, never by this program.
type InstallScript struct {
	// custom holds user statements in declaration order.
	custom []string
}

// Append validates stmt and adds it after the previously appended statements.
func (s *InstallScript) Append(stmt string) error {
	if err := ValidateStatement(stmt); err != nil {
		return err
	}

	s.custom = append(s.custom, stmt)

	return nil
}

// Statements returns the bootstrap statements followed by the user statements.
func (s *InstallScript) Statements() []string {
	return append(Bootstrap(), s.custom...)
}

// ValidateStatement checks that stmt parses as bash. rpm macros such as
// %{buildroot} are plain words to the shell parser, so they pass through.
func ValidateStatement(stmt string) error {
	if strings.TrimSpace(stmt) == "" {
		return ErrEmptyStatement
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	if _, err := parser.Parse(strings.NewReader(stmt), "install"); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrStatementSyntax, stmt, err)
	}

	return nil
}
