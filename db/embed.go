// Package db provides the embedded HireSpark database dump.
package db

import _ "embed"

// Dump contains the mysqldump-style script that (re)creates the HireSpark
// tables and seeds demo data.
//
//go:embed jobspark.sql
var Dump string

// DumpName is the file name the embedded dump was built from.
const DumpName = "jobspark.sql"
