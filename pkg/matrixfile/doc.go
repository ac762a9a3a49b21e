// SPDX-License-Identifier: MPL-2.0

// Package matrixfile implements the declarative test-matrix configuration
// format consumed by envmatrix. The format is the classic ConfigParser INI
// dialect: [section] and [section:name] headers, key = value pairs, and
// "key:" bodies whose indented continuation lines form ordered lists.
//
// A matrix file declares a generative environment list (e.g.
// "py{27,36}-django{111,20}"), a base [testenv] section, optional
// [testenv:NAME] overlays, and passthrough sections for external tools
// (e.g. [flake8]). Factor-conditional lines ("django111: Django>=1.11,<2.0")
// restrict a dependency or command to environments carrying the factor.
package matrixfile
