package pax

import "github.com/package-url/packageurl-go"

// purlType maps an AdapterKind to the package-url type string for that
// format, per the package-url spec's existing "rpm"/"deb" types; PAX and
// plain tarball packages have no registered type, so they use "generic"
// (the spec's catch-all for formats it doesn't define).
func purlType(k AdapterKind) string {
	switch k {
	case KindRPM:
		return "rpm"
	case KindDEB:
		return "deb"
	default:
		return "generic"
	}
}

// PackageURL builds the package-url identifying one resolved package;
// `pax info` prints it as a human-readable, tool-interchangeable package
// reference.
func PackageURL(kind AdapterKind, name, version, arch string) packageurl.PackageURL {
	var qualifiers packageurl.Qualifiers
	if arch != "" {
		qualifiers = packageurl.QualifiersFromMap(map[string]string{"arch": arch})
	}
	return packageurl.PackageURL{
		Type:       purlType(kind),
		Name:       name,
		Version:    version,
		Qualifiers: qualifiers,
	}
}
