package manifest

import "strings"

// InternalName converts a source-style class name to the slash-separated
// form class files use: "demo.app.Main" -> "demo/app/Main". Names already
// in internal form are returned unchanged.
func InternalName(s string) string {
	s = strings.TrimSuffix(s, ".class")
	return strings.ReplaceAll(s, ".", "/")
}

// reservedPackages are the packages whose classes the VM defines natively.
var reservedPackages = []string{
	"java/lang/",
	"uj/lang/",
}

// IsReservedClass reports whether name lies in a package the VM reserves
// for its built-in classes. Only the package prefix is checked, so
// "java/lang/Thing" is reserved even though no such class exists, while
// "java/util/List" is not.
func IsReservedClass(name string) bool {
	for _, p := range reservedPackages {
		if strings.HasPrefix(name, p) && !strings.Contains(name[len(p):], "/") {
			return true
		}
	}
	return false
}
