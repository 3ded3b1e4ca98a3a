// Command runjs runs script files and prints what they write to the
// console.
//
// Arguments are files, directories (walked for .js, .mjs and .cjs) or
// doublestar globs. Scripts run in a local sandbox, or on a remote server
// with -server.
//
//	runjs examples/
//	runjs -html page.html 'tests/**/*.js'
//	runjs -server http://localhost:8000 -json script.js
//
// The exit status is 1 when any script throws or fails to run.
package main
