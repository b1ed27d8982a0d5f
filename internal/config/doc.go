// Package config loads the analysis configuration.
//
// The configuration file is CUE (conventionally apiary.cue) and is checked
// against the embedded #Config schema before decoding. Fields the file omits
// keep the values of Default(). A few settings can be overridden from the
// environment:
//
//	APIARY_WORKERS              worker pool size
//	APIARY_PROGRAMS_DIR         <dir>/<player>/<artifact>.graphml
//	APIARY_BASELINES_DIR        <dir>/[<tag>/]<Unit>.graphml
//	APIARY_PLAYERS_FILE         player filter list
//	APIARY_FINAL_LEVEL_POLICY   reject | clamp
//	APIARY_RESAVE_POLICY        collapse | distinct
package config
