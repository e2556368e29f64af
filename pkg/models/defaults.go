package models

// Defaults are the models known out of the box. Extra models come from the
// configuration file.
var Defaults = []Model{
	{
		Name:            "DSO-6022BE",
		Transport:       TransportLibUSB,
		VendorID:        HantekVID,
		ProductID:       0x6022,
		LoaderVendorID:  CypressVID,
		LoaderProductID: 0x6022,
		Firmware:        "dso6022be-firmware.hex",
	},
	{
		Name:            "DSO-6022BL",
		Transport:       TransportLibUSB,
		VendorID:        HantekVID,
		ProductID:       0x602A,
		LoaderVendorID:  CypressVID,
		LoaderProductID: 0x602A,
		Firmware:        "dso6022bl-firmware.hex",
	},
	{
		Name:            "DSO-6021",
		Transport:       TransportLibUSB,
		VendorID:        HantekVID,
		ProductID:       0x6021,
		LoaderVendorID:  CypressVID,
		LoaderProductID: 0x6021,
		Firmware:        "dso6021-firmware.hex",
	},
	{
		// CP2110 HID-to-UART bridge used by the UT61E+ cable.
		Name:      "UT61E+",
		Transport: TransportHID,
		VendorID:  0x10C4,
		ProductID: 0xEA80,
	},
}

// Default returns a registry of Defaults.
func Default() *Registry {
	r, err := NewRegistry(Defaults...)
	if err != nil {
		panic(err)
	}
	return r
}
