// Package bom models the bill of materials that pins every service of a
// release to a commit and a build version, and builds new BOMs from the
// source information collected across repositories.
//
// A BOM built on top of a base BOM only records entries whose commit or
// version moved. When nothing moved the base document is returned as is.
package bom
