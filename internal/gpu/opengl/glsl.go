package opengl

import (
	"regexp"
	"strings"
)

var (
	versionLine  = regexp.MustCompile(`(?m)^\s*#version\s+\d+.*$`)
	setQualifier = regexp.MustCompile(`\bset\s*=\s*\d+\s*,\s*`)
	builtins     = strings.NewReplacer(
		"gl_VertexIndex", "gl_VertexID",
		"gl_InstanceIndex", "gl_InstanceID",
	)
)

// Translate rewrites a Vulkan-flavoured GLSL 450 shader for an OpenGL 4.3
// core context: the version becomes 430 core, descriptor set qualifiers
// are dropped and the Vulkan vertex builtins are renamed.
func Translate(src string) string {
	if loc := versionLine.FindStringIndex(src); loc != nil {
		src = src[:loc[0]] + "#version 430 core" + src[loc[1]:]
	} else {
		src = "#version 430 core\n" + src
	}
	src = setQualifier.ReplaceAllString(src, "")
	return builtins.Replace(src)
}
