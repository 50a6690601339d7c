package tool

var ConvertJSONSchemaToGenaiForTest = convertJSONSchemaToGenai
