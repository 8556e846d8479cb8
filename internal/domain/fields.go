package domain

// FieldKey names one tracked company field. Diffing, quality scoring, and the
// master builder's field selection all operate over this catalog.
type FieldKey string

const (
	FieldCompanyName         FieldKey = "companyName"
	FieldCompanyNameAr       FieldKey = "companyNameAr"
	FieldTaxNumber           FieldKey = "taxNumber"
	FieldCustomerType        FieldKey = "customerType"
	FieldCompanyOwner        FieldKey = "companyOwner"
	FieldBuildingNumber      FieldKey = "buildingNumber"
	FieldStreet              FieldKey = "street"
	FieldCountry             FieldKey = "country"
	FieldCity                FieldKey = "city"
	FieldContactName         FieldKey = "contactName"
	FieldEmailAddress        FieldKey = "emailAddress"
	FieldMobileNumber        FieldKey = "mobileNumber"
	FieldJobTitle            FieldKey = "jobTitle"
	FieldLandline            FieldKey = "landline"
	FieldPreferredLanguage   FieldKey = "preferredLanguage"
	FieldSalesOrg            FieldKey = "salesOrg"
	FieldDistributionChannel FieldKey = "distributionChannel"
	FieldDivision            FieldKey = "division"
)

// TrackedFields is the ordered catalog of diffable fields. Order matters for
// stable diff output and recommendation listings.
var TrackedFields = []FieldKey{
	FieldCompanyName, FieldCompanyNameAr, FieldTaxNumber, FieldCustomerType, FieldCompanyOwner,
	FieldBuildingNumber, FieldStreet, FieldCountry, FieldCity,
	FieldContactName, FieldEmailAddress, FieldMobileNumber, FieldJobTitle, FieldLandline, FieldPreferredLanguage,
	FieldSalesOrg, FieldDistributionChannel, FieldDivision,
}

var fieldDisplayNames = map[FieldKey]string{
	FieldCompanyName:         "Company Name",
	FieldCompanyNameAr:       "Company Name (Arabic)",
	FieldTaxNumber:           "Tax Number",
	FieldCustomerType:        "Customer Type",
	FieldCompanyOwner:        "Company Owner",
	FieldBuildingNumber:      "Building Number",
	FieldStreet:              "Street",
	FieldCountry:             "Country",
	FieldCity:                "City",
	FieldContactName:         "Contact Name",
	FieldEmailAddress:        "Email Address",
	FieldMobileNumber:        "Mobile Number",
	FieldJobTitle:            "Job Title",
	FieldLandline:            "Landline",
	FieldPreferredLanguage:   "Preferred Language",
	FieldSalesOrg:            "Sales Organization",
	FieldDistributionChannel: "Distribution Channel",
	FieldDivision:            "Division",
}

// DisplayName returns the human label for a field key, falling back to the
// key itself for unknown fields.
func (k FieldKey) DisplayName() string {
	if name, ok := fieldDisplayNames[k]; ok {
		return name
	}
	return string(k)
}

// CompanyFields holds the tracked company profile fields of a request.
type CompanyFields struct {
	CompanyName         string `json:"companyName"`
	CompanyNameAr       string `json:"companyNameAr"`
	TaxNumber           string `json:"taxNumber"`
	CustomerType        string `json:"customerType"`
	CompanyOwner        string `json:"companyOwner"`
	BuildingNumber      string `json:"buildingNumber"`
	Street              string `json:"street"`
	Country             string `json:"country"`
	City                string `json:"city"`
	ContactName         string `json:"contactName"`
	EmailAddress        string `json:"emailAddress"`
	MobileNumber        string `json:"mobileNumber"`
	JobTitle            string `json:"jobTitle"`
	Landline            string `json:"landline"`
	PreferredLanguage   string `json:"preferredLanguage"`
	SalesOrg            string `json:"salesOrg"`
	DistributionChannel string `json:"distributionChannel"`
	Division            string `json:"division"`
}

// Get returns the value of a tracked field by key.
func (f *CompanyFields) Get(key FieldKey) string {
	switch key {
	case FieldCompanyName:
		return f.CompanyName
	case FieldCompanyNameAr:
		return f.CompanyNameAr
	case FieldTaxNumber:
		return f.TaxNumber
	case FieldCustomerType:
		return f.CustomerType
	case FieldCompanyOwner:
		return f.CompanyOwner
	case FieldBuildingNumber:
		return f.BuildingNumber
	case FieldStreet:
		return f.Street
	case FieldCountry:
		return f.Country
	case FieldCity:
		return f.City
	case FieldContactName:
		return f.ContactName
	case FieldEmailAddress:
		return f.EmailAddress
	case FieldMobileNumber:
		return f.MobileNumber
	case FieldJobTitle:
		return f.JobTitle
	case FieldLandline:
		return f.Landline
	case FieldPreferredLanguage:
		return f.PreferredLanguage
	case FieldSalesOrg:
		return f.SalesOrg
	case FieldDistributionChannel:
		return f.DistributionChannel
	case FieldDivision:
		return f.Division
	}
	return ""
}

// Set assigns the value of a tracked field by key. Unknown keys are ignored,
// keeping payloads from unversioned callers harmless.
func (f *CompanyFields) Set(key FieldKey, value string) {
	switch key {
	case FieldCompanyName:
		f.CompanyName = value
	case FieldCompanyNameAr:
		f.CompanyNameAr = value
	case FieldTaxNumber:
		f.TaxNumber = value
	case FieldCustomerType:
		f.CustomerType = value
	case FieldCompanyOwner:
		f.CompanyOwner = value
	case FieldBuildingNumber:
		f.BuildingNumber = value
	case FieldStreet:
		f.Street = value
	case FieldCountry:
		f.Country = value
	case FieldCity:
		f.City = value
	case FieldContactName:
		f.ContactName = value
	case FieldEmailAddress:
		f.EmailAddress = value
	case FieldMobileNumber:
		f.MobileNumber = value
	case FieldJobTitle:
		f.JobTitle = value
	case FieldLandline:
		f.Landline = value
	case FieldPreferredLanguage:
		f.PreferredLanguage = value
	case FieldSalesOrg:
		f.SalesOrg = value
	case FieldDistributionChannel:
		f.DistributionChannel = value
	case FieldDivision:
		f.Division = value
	}
}

// Map returns all tracked fields as a key→value map.
func (f *CompanyFields) Map() map[FieldKey]string {
	out := make(map[FieldKey]string, len(TrackedFields))
	for _, key := range TrackedFields {
		out[key] = f.Get(key)
	}
	return out
}

// FieldsFromMap builds CompanyFields from a key→value map, ignoring unknown keys.
func FieldsFromMap(values map[FieldKey]string) CompanyFields {
	var f CompanyFields
	for key, value := range values {
		f.Set(key, value)
	}
	return f
}
