package ui

// iconBytes is a 16x16 PNG shown in the system tray. Windows would want an
// .ico here; the PNG covers the platforms the agent currently targets.
var iconBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff, 0x61, 0x00, 0x00, 0x00,
	0x3b, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda, 0x63, 0x60, 0x80, 0x02, 0x81,
	0x82, 0x8a, 0xff, 0xa4, 0x60, 0x06, 0x64, 0x40, 0xaa, 0x66, 0x14, 0x43,
	0xc8, 0xd5, 0x0c, 0x37, 0x64, 0xf0, 0x1a, 0xf0, 0xf5, 0xeb, 0x57, 0xca,
	0x0d, 0x80, 0x61, 0x8a, 0x0d, 0xc0, 0x67, 0x10, 0x7d, 0x0c, 0x18, 0x98,
	0x40, 0x1c, 0x42, 0x09, 0x89, 0xe2, 0xcc, 0x44, 0x69, 0x76, 0x06, 0x00,
	0x68, 0xf7, 0x01, 0xc9, 0x04, 0x8a, 0x0e, 0x4f, 0x00, 0x00, 0x00, 0x00,
	0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
